// Copyright 2025 Nguyen Nhat Nguyen
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

package worker

import (
	"context"
	"sync"
)

type Worker[Job any] func(context.Context, Job)

// BlockingPool spawns size workers to execute jobs and blocks until the
// jobs channel closes or the context is cancelled. The caller must ensure
// one of the two eventually happens. A capped pool keeps sweep fan-out
// from saturating the backing stores under load.
func BlockingPool[Job any](ctx context.Context, size int, jobs <-chan Job, worker Worker[Job]) {
	if size <= 0 {
		size = 1
	}
	wg := sync.WaitGroup{}
	// workers pull jobs while listening for channel closure and ctx cancellation
	for range size {
		wg.Go(func() {
			// wg.Go requires that func does not panic
			defer func() { _ = recover() }()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-jobs:
					if !ok {
						return
					}
					worker(ctx, job)
				}
			}
		})
	}
	wg.Wait()
}
