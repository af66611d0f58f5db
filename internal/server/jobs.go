package server

import (
	"sync"

	"genrep/internal/collector"
)

// JobStatus is the lifecycle state of a bulk job.
type JobStatus string

const (
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// Job is a bulk parse of remote replays.
type Job struct {
	ID      string                `json:"id"`
	Status  JobStatus             `json:"status"`
	Total   int                   `json:"total"`
	Done    int                   `json:"done"`
	Stats   collector.Stats       `json:"stats"`
	Results []collector.JobResult `json:"results,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// Event is one message of the progress feed.
type Event struct {
	Type    string `json:"type"` // "progress" or "finished"
	Done    int    `json:"done"`
	Total   int    `json:"total"`
	Job     string `json:"job,omitempty"`
	MatchID string `json:"matchId,omitempty"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

const subscriberBuffer = 64

// JobStore is an in-memory store of jobs and their progress subscribers.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	subs map[string][]chan Event
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		subs: make(map[string][]chan Event),
	}
}

func (s *JobStore) Create(id string, total int) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &Job{ID: id, Status: JobStatusRunning, Total: total}
	s.jobs[id] = job
	return *job
}

// Get returns a snapshot of the job.
func (s *JobStore) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Progress records a finished replay and notifies subscribers. Slow
// subscribers miss events rather than stall the job.
func (s *JobStore) Progress(id string, done int, res collector.JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return
	}
	job.Done = done

	ev := Event{Type: "progress", Done: done, Total: job.Total, Job: res.Job.String(), Error: res.Error}
	if res.Report != nil {
		ev.MatchID = res.Report.MatchID
		ev.Result = res.Report.Result
	}
	s.publish(id, ev)
}

// Finish marks the job complete and closes its subscriptions.
func (s *JobStore) Finish(id string, results []collector.JobResult, stats collector.Stats, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return
	}
	job.Status = JobStatusDone
	job.Results = results
	job.Stats = stats
	ev := Event{Type: "finished", Done: job.Done, Total: job.Total}
	if err != nil {
		job.Status = JobStatusError
		job.Error = err.Error()
		ev.Error = job.Error
	}
	s.publish(id, ev)

	for _, ch := range s.subs[id] {
		close(ch)
	}
	delete(s.subs, id)
}

func (s *JobStore) publish(id string, ev Event) {
	for _, ch := range s.subs[id] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns the current state of the job and a channel of later
// events. The channel is closed when the job finishes; for a finished job
// it is already closed.
func (s *JobStore) Subscribe(id string) (Job, <-chan Event, func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, nil, func() {}, false
	}
	ch := make(chan Event, subscriberBuffer)
	if job.Status != JobStatusRunning {
		close(ch)
		return *job, ch, func() {}, true
	}
	s.subs[id] = append(s.subs[id], ch)

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subs[id]
		for i, c := range subs {
			if c == ch {
				s.subs[id] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return *job, ch, unsubscribe, true
}
