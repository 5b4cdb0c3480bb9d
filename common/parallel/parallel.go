// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package parallel runs indexed jobs on a bounded number of workers.
package parallel

import (
	"context"

	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"
)

const chanSize = 1024

// Parallel runs jobs 0..nJobs-1 on nWorkers workers. worker receives the id of the
// worker and the id of the job. The first error cancels outstanding jobs and is returned.
func Parallel(ctx context.Context, nJobs, nWorkers int, worker func(workerId, jobId int) error) error {
	if nWorkers <= 1 {
		for i := 0; i < nJobs; i++ {
			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}
			if err := worker(0, i); err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	}
	g, groupCtx := errgroup.WithContext(ctx)
	c := make(chan int, chanSize)
	// producer
	g.Go(func() error {
		defer close(c)
		for i := 0; i < nJobs; i++ {
			select {
			case <-groupCtx.Done():
				return nil
			case c <- i:
			}
		}
		return nil
	})
	// consumers
	for j := 0; j < nWorkers; j++ {
		workerId := j
		g.Go(func() error {
			for jobId := range c {
				if err := groupCtx.Err(); err != nil {
					return err
				}
				if err := worker(workerId, jobId); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Trace(err)
	}
	// the producer stops silently when the parent context is cancelled
	return errors.Trace(ctx.Err())
}

// Split a slice into n slices and keep the order of elements.
func Split[T any](a []T, n int) [][]T {
	if len(a) == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if n > len(a) {
		n = len(a)
	}
	minChunkSize := len(a) / n
	maxChunkNum := len(a) % n
	chunks := make([][]T, n)
	for i, j := 0, 0; i < n; i++ {
		chunkSize := minChunkSize
		if i < maxChunkNum {
			chunkSize++
		}
		chunks[i] = a[j : j+chunkSize]
		j += chunkSize
	}
	return chunks
}
