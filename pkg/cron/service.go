package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/sipeed/picochat/pkg/logger"
)

const (
	ScheduleAt    = "at"
	ScheduleEvery = "every"
	ScheduleCron  = "cron"
)

const (
	// PayloadAnnounce sends Message verbatim to Channel/To.
	PayloadAnnounce = "announce"
	// PayloadPrompt asks the completion backend and delivers its reply.
	PayloadPrompt = "prompt"
	// PayloadSweepSessions drops conversations idle for IdleMinutes.
	PayloadSweepSessions = "sweep_sessions"
)

type CronSchedule struct {
	Kind    string `json:"kind"`
	AtMS    *int64 `json:"atMs,omitempty"`
	EveryMS *int64 `json:"everyMs,omitempty"`
	Expr    string `json:"expr,omitempty"`
	TZ      string `json:"tz,omitempty"`
}

type CronPayload struct {
	Kind        string `json:"kind"`
	Message     string `json:"message,omitempty"`
	Channel     string `json:"channel,omitempty"`
	To          string `json:"to,omitempty"`
	IdleMinutes int    `json:"idleMinutes,omitempty"`
}

type CronJobState struct {
	NextRunAtMS *int64 `json:"nextRunAtMs,omitempty"`
	LastRunAtMS *int64 `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	LastError   string `json:"lastError,omitempty"`
	LastResult  string `json:"lastResult,omitempty"`
}

type CronJob struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Enabled        bool         `json:"enabled"`
	Schedule       CronSchedule `json:"schedule"`
	Payload        CronPayload  `json:"payload"`
	State          CronJobState `json:"state"`
	CreatedAtMS    int64        `json:"createdAtMs"`
	UpdatedAtMS    int64        `json:"updatedAtMs"`
	DeleteAfterRun bool         `json:"deleteAfterRun"`
}

type CronStore struct {
	Version int       `json:"version"`
	Jobs    []CronJob `json:"jobs"`
}

// JobHandler runs a due job and returns a short result for the job state.
type JobHandler func(job *CronJob) (string, error)

type CronService struct {
	storePath string
	store     *CronStore
	onJob     JobHandler
	mu        sync.RWMutex
	running   bool
	stopChan  chan struct{}
	tick      time.Duration
	now       func() time.Time
}

func NewCronService(storePath string, onJob JobHandler) *CronService {
	cs := &CronService{
		storePath: storePath,
		onJob:     onJob,
		tick:      time.Second,
		now:       time.Now,
	}
	if err := cs.loadStore(); err != nil {
		logger.WarnCF("cron", "Failed to load job store", map[string]interface{}{
			"path":  storePath,
			"error": err.Error(),
		})
	}
	return cs
}

// ValidatePayload rejects payloads the handler could not run.
func ValidatePayload(p CronPayload) error {
	switch p.Kind {
	case PayloadAnnounce, PayloadPrompt:
		if strings.TrimSpace(p.Message) == "" {
			return fmt.Errorf("%s job needs a message", p.Kind)
		}
		if p.Channel == "" || p.To == "" {
			return fmt.Errorf("%s job needs a channel and a target", p.Kind)
		}
	case PayloadSweepSessions:
		if p.IdleMinutes <= 0 {
			return fmt.Errorf("sweep_sessions job needs idle minutes > 0")
		}
	default:
		return fmt.Errorf("unknown payload kind %q", p.Kind)
	}
	return nil
}

func ValidateSchedule(s CronSchedule) error {
	switch s.Kind {
	case ScheduleAt:
		if s.AtMS == nil {
			return fmt.Errorf("at schedule needs a time")
		}
	case ScheduleEvery:
		if s.EveryMS == nil || *s.EveryMS <= 0 {
			return fmt.Errorf("every schedule needs a positive interval")
		}
	case ScheduleCron:
		if s.Expr == "" || !gronx.New().IsValid(s.Expr) {
			return fmt.Errorf("invalid cron expression %q", s.Expr)
		}
	default:
		return fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
	return nil
}

func (cs *CronService) Start() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.running {
		return nil
	}

	if err := cs.loadStore(); err != nil {
		return fmt.Errorf("failed to load store: %w", err)
	}

	cs.recomputeNextRuns()
	if err := cs.saveStoreUnsafe(); err != nil {
		return fmt.Errorf("failed to save store: %w", err)
	}

	cs.running = true
	cs.stopChan = make(chan struct{})
	go cs.runLoop(cs.stopChan)

	logger.InfoCF("cron", "Cron service started", map[string]interface{}{
		"jobs": len(cs.store.Jobs),
	})
	return nil
}

func (cs *CronService) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.running {
		return
	}

	cs.running = false
	close(cs.stopChan)
	logger.InfoC("cron", "Cron service stopped")
}

func (cs *CronService) runLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(cs.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cs.checkJobs()
		}
	}
}

func (cs *CronService) checkJobs() {
	cs.mu.Lock()

	if !cs.running {
		cs.mu.Unlock()
		return
	}

	now := cs.now().UnixMilli()
	var dueJobs []*CronJob

	for i := range cs.store.Jobs {
		job := &cs.store.Jobs[i]
		if job.Enabled && job.State.NextRunAtMS != nil && *job.State.NextRunAtMS <= now {
			jobCopy := *job
			dueJobs = append(dueJobs, &jobCopy)
			// Cleared until the run finishes so the next tick skips it.
			job.State.NextRunAtMS = nil
		}
	}

	if len(dueJobs) > 0 {
		if err := cs.saveStoreUnsafe(); err != nil {
			logger.ErrorCF("cron", "Failed to save store", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	cs.mu.Unlock()

	for _, job := range dueJobs {
		cs.executeJob(job)
	}
}

func (cs *CronService) executeJob(job *CronJob) {
	startTime := cs.now().UnixMilli()

	cs.mu.RLock()
	handler := cs.onJob
	cs.mu.RUnlock()

	var (
		result string
		err    error
	)
	if handler != nil {
		result, err = handler(job)
	}

	fields := map[string]interface{}{
		"job_id":  job.ID,
		"name":    job.Name,
		"payload": job.Payload.Kind,
	}
	if err != nil {
		fields["error"] = err.Error()
		logger.ErrorCF("cron", "Job failed", fields)
	} else {
		logger.InfoCF("cron", "Job finished", fields)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	for i := range cs.store.Jobs {
		stored := &cs.store.Jobs[i]
		if stored.ID != job.ID {
			continue
		}

		stored.State.LastRunAtMS = &startTime
		stored.State.LastResult = result
		stored.UpdatedAtMS = cs.now().UnixMilli()
		if err != nil {
			stored.State.LastStatus = "error"
			stored.State.LastError = err.Error()
		} else {
			stored.State.LastStatus = "ok"
			stored.State.LastError = ""
		}

		if stored.Schedule.Kind == ScheduleAt {
			if stored.DeleteAfterRun {
				cs.removeJobUnsafe(job.ID)
				return
			}
			stored.Enabled = false
			stored.State.NextRunAtMS = nil
		} else if stored.Enabled {
			stored.State.NextRunAtMS = cs.computeNextRun(&stored.Schedule, cs.now().UnixMilli())
		}
		break
	}

	if err := cs.saveStoreUnsafe(); err != nil {
		logger.ErrorCF("cron", "Failed to save store", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (cs *CronService) computeNextRun(schedule *CronSchedule, nowMS int64) *int64 {
	switch schedule.Kind {
	case ScheduleAt:
		if schedule.AtMS != nil && *schedule.AtMS > nowMS {
			return schedule.AtMS
		}
		return nil

	case ScheduleEvery:
		if schedule.EveryMS == nil || *schedule.EveryMS <= 0 {
			return nil
		}
		next := nowMS + *schedule.EveryMS
		return &next

	case ScheduleCron:
		if schedule.Expr == "" {
			return nil
		}
		ref := time.UnixMilli(nowMS)
		if schedule.TZ != "" {
			if loc, err := time.LoadLocation(schedule.TZ); err == nil {
				ref = ref.In(loc)
			}
		}
		nextTime, err := gronx.NextTickAfter(schedule.Expr, ref, false)
		if err != nil {
			logger.WarnCF("cron", "Failed to compute next run", map[string]interface{}{
				"expr":  schedule.Expr,
				"error": err.Error(),
			})
			return nil
		}
		nextMS := nextTime.UnixMilli()
		return &nextMS
	}

	return nil
}

func (cs *CronService) recomputeNextRuns() {
	now := cs.now().UnixMilli()
	for i := range cs.store.Jobs {
		job := &cs.store.Jobs[i]
		if job.Enabled {
			job.State.NextRunAtMS = cs.computeNextRun(&job.Schedule, now)
		}
	}
}

func (cs *CronService) getNextWakeMS() *int64 {
	var nextWake *int64
	for _, job := range cs.store.Jobs {
		if job.Enabled && job.State.NextRunAtMS != nil {
			if nextWake == nil || *job.State.NextRunAtMS < *nextWake {
				nextWake = job.State.NextRunAtMS
			}
		}
	}
	return nextWake
}

func (cs *CronService) SetOnJob(handler JobHandler) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.onJob = handler
}

func (cs *CronService) loadStore() error {
	cs.store = &CronStore{
		Version: 1,
		Jobs:    []CronJob{},
	}

	data, err := os.ReadFile(cs.storePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return json.Unmarshal(data, cs.store)
}

func (cs *CronService) saveStoreUnsafe() error {
	if err := os.MkdirAll(filepath.Dir(cs.storePath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cs.store, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(cs.storePath, data, 0644)
}

func (cs *CronService) AddJob(name string, schedule CronSchedule, payload CronPayload) (*CronJob, error) {
	if err := ValidateSchedule(schedule); err != nil {
		return nil, err
	}
	if err := ValidatePayload(payload); err != nil {
		return nil, err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	now := cs.now().UnixMilli()
	job := CronJob{
		ID:       uuid.NewString(),
		Name:     name,
		Enabled:  true,
		Schedule: schedule,
		Payload:  payload,
		State: CronJobState{
			NextRunAtMS: cs.computeNextRun(&schedule, now),
		},
		CreatedAtMS:    now,
		UpdatedAtMS:    now,
		DeleteAfterRun: schedule.Kind == ScheduleAt,
	}

	cs.store.Jobs = append(cs.store.Jobs, job)
	if err := cs.saveStoreUnsafe(); err != nil {
		return nil, fmt.Errorf("failed to save store: %w", err)
	}

	logger.InfoCF("cron", "Job added", map[string]interface{}{
		"job_id":  job.ID,
		"name":    name,
		"payload": payload.Kind,
	})
	return &job, nil
}

func (cs *CronService) RemoveJob(jobID string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	return cs.removeJobUnsafe(jobID)
}

func (cs *CronService) removeJobUnsafe(jobID string) bool {
	jobs := cs.store.Jobs[:0]
	removed := false
	for _, job := range cs.store.Jobs {
		if job.ID == jobID {
			removed = true
			continue
		}
		jobs = append(jobs, job)
	}
	cs.store.Jobs = jobs

	if removed {
		if err := cs.saveStoreUnsafe(); err != nil {
			logger.ErrorCF("cron", "Failed to save store after remove", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	return removed
}

func (cs *CronService) EnableJob(jobID string, enabled bool) *CronJob {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for i := range cs.store.Jobs {
		job := &cs.store.Jobs[i]
		if job.ID != jobID {
			continue
		}

		job.Enabled = enabled
		job.UpdatedAtMS = cs.now().UnixMilli()
		if enabled {
			job.State.NextRunAtMS = cs.computeNextRun(&job.Schedule, job.UpdatedAtMS)
		} else {
			job.State.NextRunAtMS = nil
		}

		if err := cs.saveStoreUnsafe(); err != nil {
			logger.ErrorCF("cron", "Failed to save store after enable", map[string]interface{}{
				"error": err.Error(),
			})
		}
		jobCopy := *job
		return &jobCopy
	}

	return nil
}

func (cs *CronService) ListJobs(includeDisabled bool) []CronJob {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	jobs := make([]CronJob, 0, len(cs.store.Jobs))
	for _, job := range cs.store.Jobs {
		if includeDisabled || job.Enabled {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

func (cs *CronService) Status() map[string]interface{} {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	var enabledCount int
	for _, job := range cs.store.Jobs {
		if job.Enabled {
			enabledCount++
		}
	}

	return map[string]interface{}{
		"enabled":      cs.running,
		"jobs":         len(cs.store.Jobs),
		"enabled_jobs": enabledCount,
		"nextWakeAtMS": cs.getNextWakeMS(),
	}
}
