// Copyright 2025 Nhat-Nguyen Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package redis

import (
	"errors"
	"fmt"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/rueidislock"
)

// NewLocker builds a rueidislock.Locker from the same Config as NewClient.
// The locker owns its own connections; close it separately.
func NewLocker(cfg Config) (rueidislock.Locker, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis: URL must not be empty")
	}

	clientOpt, err := rueidis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	clientOpt.ClientName = cfg.ClientName

	return rueidislock.NewLocker(rueidislock.LockerOption{
		ClientOption: clientOpt,
		// single-instance deployment
		KeyMajority:    1,
		NoLoopTracking: true,
	})
}
