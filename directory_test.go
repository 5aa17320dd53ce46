// Copyright 2013 Richard Lehane. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFiletimeToTime(t *testing.T) {
	assert.True(t, filetimeToTime(0).IsZero())

	// The Unix epoch expressed in FILETIME ticks.
	unixEpoch := uint64(filetimeUnixDelta) * 10000000
	assert.Equal(t, time.Unix(0, 0).UTC(), filetimeToTime(unixEpoch))

	// A modern date, which would overflow time.Duration if converted
	// through one.
	assert.Equal(t,
		time.Date(2022, 6, 18, 4, 26, 40, 0, time.UTC),
		filetimeToTime(133000000000000000))

	// Sub-second ticks survive.
	assert.Equal(t,
		time.Unix(0, 100).UTC(),
		filetimeToTime(unixEpoch+1))
}

func TestClampDeclaredLength(t *testing.T) {
	var warned int
	sink := WarningSinkFunc(func(Warning) { warned++ })

	// Declared within the final sector's slack: trusted.
	assert.EqualValues(t, 544, clampDeclaredLength(sink, 544, 2, 512))
	assert.Zero(t, warned)

	// Declared larger than the chain can hold: clamped, with a warning.
	assert.EqualValues(t, 1024, clampDeclaredLength(sink, 3072, 2, 512))
	assert.Equal(t, 1, warned)

	// Declared smaller than the chain implies: also out of bounds.
	assert.EqualValues(t, 1024, clampDeclaredLength(sink, 100, 2, 512))
	assert.Equal(t, 2, warned)

	// Empty chain serves nothing regardless of declaration.
	assert.EqualValues(t, 0, clampDeclaredLength(sink, 0, 0, 512))
	assert.Equal(t, 2, warned)
}
