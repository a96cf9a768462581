package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	s800 "github.com/s800-analysis/s800go/pkg"
)

type WorkerData struct {
	Seq    int
	Header s800.GebHeader
	Words  []uint16
}

type WorkerResult struct {
	Seq   int
	Event s800.EventType
}

type RunSummary struct {
	Read     int
	Written  int
	Errors   int
	Duration time.Duration
}

// decodeEvent turns a panic while processing one event into a discarded
// event.
func decodeEvent(processor *s800.Processor, job WorkerData) (event s800.EventType) {
	defer func() {
		if r := recover(); r != nil {
			errMessage := fmt.Errorf("decoder recovered from panic on event %d: %v", job.Seq, r)
			logger.Error(errMessage.Error())
			event = s800.EventType{EventNumber: job.Seq, Error: true, Errors: []error{errMessage}}
		}
	}()

	event = processor.ProcessEvent(job.Seq, job.Words)
	if event.Timestamp == 0 {
		event.Timestamp = uint64(job.Header.Timestamp)
	}
	return event
}

func worker(ctx context.Context, id int, processor *s800.Processor, jobs <-chan WorkerData, results chan<- WorkerResult) {
	for job := range jobs {
		if VerbosityLevel > 2 {
			logger.Info(fmt.Sprintf("Worker %d processing event %d", id, job.Seq), "worker")
		}
		result := WorkerResult{Seq: job.Seq, Event: decodeEvent(processor, job)}
		select {
		case results <- result:
		case <-ctx.Done():
			return
		}
	}
}

func sendEventsToWorkers(ctx context.Context, fileReader *s800.FileReader, jobs chan<- WorkerData) error {
	defer close(jobs)
	for seq := 0; ; seq++ {
		header, words, err := fileReader.NextEvent()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("error reading event %d: %w", fileReader.EvtCount, err)
		}
		select {
		case jobs <- WorkerData{Seq: seq, Header: header, Words: words}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// processWorkerResults writes the events in file order, whatever the order
// the workers finish them in.
func processWorkerResults(results <-chan WorkerResult, selection *s800.Selection,
	writer *s800.Writer, writer2 *s800.Writer) (RunSummary, error) {
	var summary RunSummary
	pending := make(map[int]s800.EventType)
	next := 0
	start := time.Now()

	for result := range results {
		pending[result.Seq] = result.Event
		for {
			event, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			summary.Read++
			if event.Error {
				summary.Errors++
				if VerbosityLevel > 0 {
					for _, err := range event.Errors {
						logger.Info(fmt.Sprintf("Event %d: %v", event.EventNumber, err), "writer")
					}
				}
			}
			before := 0
			if writer != nil {
				before = writer.EvtCounter
			}
			if err := s800.ProcessDecodedEvent(event, configuration, selection, writer, writer2); err != nil {
				return summary, err
			}
			if writer != nil && writer.EvtCounter > before {
				summary.Written++
			}
		}
	}
	summary.Duration = time.Since(start)
	return summary, nil
}

// runWorkers reads, processes and writes every event of the file.
func runWorkers(ctx context.Context, fileReader *s800.FileReader, processor *s800.Processor,
	selection *s800.Selection, writer *s800.Writer, writer2 *s800.Writer) (RunSummary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan WorkerData, 4*configuration.NumWorkers)
	results := make(chan WorkerResult, 4*configuration.NumWorkers)

	var readErr error
	var wgReader sync.WaitGroup
	wgReader.Add(1)
	go func() {
		defer wgReader.Done()
		readErr = sendEventsToWorkers(ctx, fileReader, jobs)
	}()

	var wg sync.WaitGroup
	for w := 1; w <= configuration.NumWorkers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			worker(ctx, id, processor, jobs, results)
		}(w)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	summary, err := processWorkerResults(results, selection, writer, writer2)
	if err != nil {
		cancel()
		// drain so the workers can exit
		for range results {
		}
	}
	wgReader.Wait()
	if err == nil && readErr != nil && !errors.Is(readErr, context.Canceled) {
		err = readErr
	}
	return summary, err
}
