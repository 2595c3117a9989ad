// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package idgen generates time-ordered ids for settingstore processes.
package idgen

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sony/sonyflake"
)

var (
	defaultOnce      sync.Once
	defaultGenerator *SonyFlakeGenerator
)

// SonyFlakeGenerator hands out sonyflake ids.
type SonyFlakeGenerator struct {
	sf *sonyflake.Sonyflake
}

func newFlakeGenerator() (*SonyFlakeGenerator, error) {
	settings := sonyflake.Settings{
		StartTime: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		MachineID: machineID,
	}

	sf, err := sonyflake.New(settings)
	if err != nil {
		return nil, err
	}
	if sf == nil {
		return nil, errors.New("failed to create Sonyflake instance")
	}
	return &SonyFlakeGenerator{sf: sf}, nil
}

// machineID uses the private IP address like sonyflake does by default, and
// falls back to a random id on hosts without one.
func machineID() (uint16, error) {
	probe, err := sonyflake.New(sonyflake.Settings{})
	if err == nil && probe != nil {
		if id, err := probe.NextID(); err == nil {
			return uint16(sonyflake.MachineID(id)), nil
		}
	}
	return uint16(rand.N(1 << 16)), nil
}

// NextID returns a positive int64 that'll increase roughly in time order.
func (g *SonyFlakeGenerator) NextID() int64 {
	v, err := g.sf.NextID()
	if err != nil {
		return rand.Int64()
	}
	return int64(v)
}

// NextBase32ID returns NextID as a lowercase, unpadded base32 string.
func (g *SonyFlakeGenerator) NextBase32ID() string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(g.NextID()))
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return strings.ToLower(enc.EncodeToString(b[:]))
}

func defaultFlake() *SonyFlakeGenerator {
	defaultOnce.Do(func() {
		g, err := newFlakeGenerator()
		if err != nil {
			panic(err)
		}
		defaultGenerator = g
	})
	return defaultGenerator
}

// NextBase32ID returns a base32 id from the process-wide generator.
func NextBase32ID() string {
	return defaultFlake().NextBase32ID()
}
