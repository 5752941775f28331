// Package engine implements the timeline computations and mutations. All
// mutations run in a single transaction and rewrite the affected timeline
// document in one statement, with the audit event appended in the same
// transaction.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"siteline/internal/config"
	"siteline/internal/dateindex"
	"siteline/internal/domain"
	"siteline/internal/events"
	"siteline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config config.Config

	// Now is the engine clock. Tests pin it.
	Now func() time.Time
}

func New(db *sql.DB, cfg config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db, Now: time.Now},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Projects

func (e Engine) CreateProject(ctx context.Context, actorID, name string) (domain.Project, error) {
	p := domain.Project{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    "active",
		CreatedBy: actorID,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	// Creator becomes the owning member.
	if err := e.Repo.UpsertMember(ctx, tx, domain.Member{
		ProjectID:       p.ID,
		UserID:          actorID,
		Permission:      "owner",
		CanEditTimeline: true,
		CreatedAt:       p.CreatedAt,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, "project", p.ID, actorID, events.EventPayload{"name": name}); err != nil {
		return domain.Project{}, err
	}
	return p, tx.Commit()
}

// Timeline input

// TaskInput is the authoring shape of a task: scheduling fields only, with
// weight and cost optional. Curves, duration and hierarchy are derived.
type TaskInput struct {
	ID        string      `json:"id,omitempty"`
	Name      string      `json:"name"`
	StartDate string      `json:"start_date" format:"date-time"`
	EndDate   string      `json:"end_date" format:"date-time"`
	Weight    *float64    `json:"weight,omitempty"`
	Cost      *float64    `json:"cost,omitempty"`
	Subtasks  []TaskInput `json:"subtasks,omitempty"`
}

type TimelineInput struct {
	Name           string      `json:"name"`
	Currency       string      `json:"currency,omitempty"`
	WorksSaturdays bool        `json:"works_saturdays"`
	WorksSundays   bool        `json:"works_sundays"`
	Tasks          []TaskInput `json:"tasks"`
}

// CreateTimeline builds a new revision from authoring input: ids and outline
// numbers assigned, sibling weights defaulted to an even split, per-task
// planned curves authored as a daily linear ramp, and the timeline-level curve
// derived as the weighted sum over top-level tasks.
func (e Engine) CreateTimeline(ctx context.Context, actorID, projectID string, in TimelineInput) (domain.Timeline, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.Timeline{}, err
	}
	now := e.now()
	tl := domain.Timeline{
		ID:             uuid.NewString(),
		ProjectID:      projectID,
		Name:           in.Name,
		Currency:       in.Currency,
		CreatedBy:      actorID,
		CreatedAt:      now.UTC().Format(time.RFC3339),
		WorksSaturdays: in.WorksSaturdays,
		WorksSundays:   in.WorksSundays,
	}
	includeWeekends := e.Config.IncludeWeekends() || in.WorksSaturdays || in.WorksSundays
	tl.Tasks = buildTasks(in.Tasks, "", includeWeekends)
	tl.PlannedProgress = timelineCurve(tl.Tasks, includeWeekends)
	if err := repo.ValidateTimelineDoc(tl); err != nil {
		return domain.Timeline{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Timeline{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTimeline(ctx, tx, tl); err != nil {
		return domain.Timeline{}, err
	}
	if err := e.Events.Append(ctx, tx, "timeline.created", projectID, "timeline", tl.ID, actorID,
		events.EventPayload{"name": tl.Name, "tasks": countTasks(tl.Tasks)}); err != nil {
		return domain.Timeline{}, err
	}
	return tl, tx.Commit()
}

func buildTasks(in []TaskInput, parentOutline string, includeWeekends bool) []domain.Task {
	if len(in) == 0 {
		return nil
	}
	tasks := make([]domain.Task, 0, len(in))
	evenWeight := 1.0 / float64(len(in))
	for i, ti := range in {
		outline := fmt.Sprintf("%d", i+1)
		if parentOutline != "" {
			outline = parentOutline + "." + outline
		}
		t := domain.Task{
			ID:        ti.ID,
			Name:      ti.Name,
			StartDate: ti.StartDate,
			EndDate:   ti.EndDate,
			Weight:    evenWeight,
			Cost:      ti.Cost,
			Hierarchy: outline,
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if ti.Weight != nil {
			t.Weight = *ti.Weight
		}
		t.Subtasks = buildTasks(ti.Subtasks, outline, includeWeekends)
		t.Duration = durationDays(t, includeWeekends)
		t.PlannedProgress = plannedRamp(t, includeWeekends)
		tasks = append(tasks, t)
	}
	return tasks
}

func durationDays(t domain.Task, includeWeekends bool) int {
	start, err1 := dateindex.Parse(t.StartDate)
	end, err2 := dateindex.Parse(t.EndDate)
	if err1 != nil || err2 != nil {
		return 0
	}
	n := 0
	for range dateindex.Days(start, end, includeWeekends, true) {
		n++
	}
	return n
}

// plannedRamp authors a linear daily curve from the first working day to 1.0
// on the task's last day. Parents with subtasks get the weighted sum of their
// children instead of their own ramp.
func plannedRamp(t domain.Task, includeWeekends bool) map[string]float64 {
	start, err1 := dateindex.Parse(t.StartDate)
	end, err2 := dateindex.Parse(t.EndDate)
	if err1 != nil || err2 != nil {
		return map[string]float64{}
	}
	curve := map[string]float64{}
	if len(t.Subtasks) > 0 {
		for day := range dateindex.Days(start, end, includeWeekends, true) {
			sum := 0.0
			for _, st := range t.Subtasks {
				sum += st.Weight * PlannedProgressAt(st, day)
			}
			curve[dateindex.Key(day)] = sum
		}
		return curve
	}
	total := 0
	for range dateindex.Days(start, end, includeWeekends, true) {
		total++
	}
	if total == 0 {
		return curve
	}
	i := 0
	for day := range dateindex.Days(start, end, includeWeekends, true) {
		i++
		curve[dateindex.Key(day)] = float64(i) / float64(total)
	}
	return curve
}

// timelineCurve derives the timeline-level planned curve as the weighted sum
// over top-level tasks for every day of the overall span.
func timelineCurve(tasks []domain.Task, includeWeekends bool) map[string]float64 {
	curve := map[string]float64{}
	startKey, endKey := taskDateRange(tasks)
	if startKey == "" {
		return curve
	}
	start, _ := dateindex.Parse(startKey)
	end, _ := dateindex.Parse(endKey)
	for day := range dateindex.Days(start, end, includeWeekends, true) {
		sum := 0.0
		for _, t := range tasks {
			sum += t.Weight * PlannedProgressAt(t, day)
		}
		curve[dateindex.Key(day)] = sum
	}
	return curve
}

func countTasks(tasks []domain.Task) int {
	n := 0
	for _, t := range tasks {
		n += 1 + countTasks(t.Subtasks)
	}
	return n
}

// Reads

func (e Engine) GetTimeline(ctx context.Context, projectID, id string) (domain.Timeline, error) {
	return e.Repo.GetTimeline(ctx, projectID, id)
}

func (e Engine) LatestTimeline(ctx context.Context, projectID string) (domain.Timeline, error) {
	return e.Repo.LatestTimeline(ctx, projectID)
}

func (e Engine) ListTimelines(ctx context.Context, projectID string) ([]domain.Timeline, error) {
	return e.Repo.ListTimelines(ctx, projectID)
}

// Dashboard aggregates the latest revision with the earliest revision as the
// planned baseline.
func (e Engine) Dashboard(ctx context.Context, projectID string) (Dashboard, error) {
	latest, err := e.Repo.LatestTimeline(ctx, projectID)
	if err != nil {
		return Dashboard{}, err
	}
	var original *domain.Timeline
	if first, err := e.Repo.EarliestTimeline(ctx, projectID, latest.ID); err == nil {
		original = &first
	} else if err != repo.ErrNotFound {
		return Dashboard{}, err
	}
	return BuildDashboard(latest, original, e.now()), nil
}

// Mutations

// RecordMeasurement upserts one progress reading on a task of the latest
// revision, keyed by the canonical measurement date. The task's actual window
// and the timeline-level actual curve are updated in the same write.
func (e Engine) RecordMeasurement(ctx context.Context, actorID, projectID, timelineID, taskID string, progress float64, measurementDate time.Time) (domain.Timeline, error) {
	if progress < 0 || progress > 1 {
		return domain.Timeline{}, repo.ValidationError{TaskID: taskID, Field: "progress_percentage", Reason: "must be between 0 and 1"}
	}
	tl, err := e.Repo.GetTimeline(ctx, projectID, timelineID)
	if err != nil {
		return domain.Timeline{}, err
	}
	task := findTask(tl.Tasks, taskID)
	if task == nil {
		return domain.Timeline{}, repo.ErrNotFound
	}

	key := dateindex.Key(measurementDate)
	m := domain.Measurement{
		ProgressPercentage: progress,
		MeasurementDate:    key,
		PublicationDate:    dateindex.Key(e.now()),
	}
	if task.ActualProgress == nil {
		task.ActualProgress = map[string]domain.Measurement{}
	}
	task.ActualProgress[key] = m
	syncActualWindow(task)

	// Timeline-level actual is the weighted sum over top-level tasks resolved
	// at the same date.
	sum := 0.0
	for _, t := range tl.Tasks {
		sum += t.Weight * ActualProgressAt(t, measurementDate)
	}
	if tl.ActualProgress == nil {
		tl.ActualProgress = map[string]domain.Measurement{}
	}
	tl.ActualProgress[key] = domain.Measurement{
		ProgressPercentage: sum,
		MeasurementDate:    key,
		PublicationDate:    m.PublicationDate,
	}

	err = e.writeDoc(ctx, actorID, tl, "measurement.recorded", events.EventPayload{
		"task_id": taskID, "date": key, "progress": progress,
	})
	return tl, err
}

// syncActualWindow derives the actual start and end dates from the recorded
// history: start is the earliest measured date, end is set only while the
// latest reading is complete.
func syncActualWindow(t *domain.Task) {
	keys := mapKeys(t.ActualProgress)
	if len(keys) == 0 {
		t.ActualStartDate = nil
		t.ActualEndDate = nil
		return
	}
	sort.Strings(keys)
	first, last := keys[0], keys[len(keys)-1]
	t.ActualStartDate = &first
	if t.ActualProgress[last].ProgressPercentage >= 1 {
		end := last
		t.ActualEndDate = &end
	} else {
		t.ActualEndDate = nil
	}
}

// TaskUpdate carries one task's editable fields for a bulk update. Nil fields
// are left untouched.
type TaskUpdate struct {
	ID        string   `json:"id"`
	Name      *string  `json:"name,omitempty"`
	StartDate *string  `json:"start_date,omitempty" format:"date-time"`
	EndDate   *string  `json:"end_date,omitempty" format:"date-time"`
	Weight    *float64 `json:"weight,omitempty"`
	Cost      *float64 `json:"cost,omitempty"`
}

// BulkUpdateTasks applies a batch of task edits to one revision as a single
// document write. Tasks whose schedule changed get their duration and planned
// ramp re-derived. Unknown task ids fail the whole batch.
func (e Engine) BulkUpdateTasks(ctx context.Context, actorID, projectID, timelineID string, updates []TaskUpdate) (domain.Timeline, error) {
	tl, err := e.Repo.GetTimeline(ctx, projectID, timelineID)
	if err != nil {
		return domain.Timeline{}, err
	}
	includeWeekends := e.Config.IncludeWeekends() || tl.WorksSaturdays || tl.WorksSundays
	for _, u := range updates {
		task := findTask(tl.Tasks, u.ID)
		if task == nil {
			return domain.Timeline{}, repo.ErrNotFound
		}
		rescheduled := false
		if u.Name != nil {
			task.Name = *u.Name
		}
		if u.StartDate != nil {
			task.StartDate = *u.StartDate
			rescheduled = true
		}
		if u.EndDate != nil {
			task.EndDate = *u.EndDate
			rescheduled = true
		}
		if u.Weight != nil {
			task.Weight = *u.Weight
		}
		if u.Cost != nil {
			task.Cost = u.Cost
		}
		if rescheduled {
			task.Duration = durationDays(*task, includeWeekends)
			task.PlannedProgress = plannedRamp(*task, includeWeekends)
		}
	}
	tl.PlannedProgress = timelineCurve(tl.Tasks, includeWeekends)
	if err := repo.ValidateTimelineDoc(tl); err != nil {
		return domain.Timeline{}, err
	}
	err = e.writeDoc(ctx, actorID, tl, "timeline.updated", events.EventPayload{"updated": len(updates)})
	return tl, err
}

// DeleteProgressDate strips one measured date from the timeline and every
// task. The date must have at least one entry somewhere in the revision.
func (e Engine) DeleteProgressDate(ctx context.Context, actorID, projectID, timelineID string, date time.Time) (domain.Timeline, error) {
	tl, err := e.Repo.GetTimeline(ctx, projectID, timelineID)
	if err != nil {
		return domain.Timeline{}, err
	}
	key := dateindex.Key(date)
	removed := 0
	if _, ok := tl.ActualProgress[key]; ok {
		delete(tl.ActualProgress, key)
		removed++
	}
	removed += stripProgressDate(tl.Tasks, key)
	if removed == 0 {
		return domain.Timeline{}, repo.ErrNotFound
	}
	err = e.writeDoc(ctx, actorID, tl, "progress.deleted", events.EventPayload{"date": key, "entries": removed})
	return tl, err
}

func stripProgressDate(tasks []domain.Task, key string) int {
	removed := 0
	for i := range tasks {
		if _, ok := tasks[i].ActualProgress[key]; ok {
			delete(tasks[i].ActualProgress, key)
			syncActualWindow(&tasks[i])
			removed++
		}
		removed += stripProgressDate(tasks[i].Subtasks, key)
	}
	return removed
}

func (e Engine) RenameTimeline(ctx context.Context, actorID, projectID, timelineID, name string) (domain.Timeline, error) {
	tl, err := e.Repo.GetTimeline(ctx, projectID, timelineID)
	if err != nil {
		return domain.Timeline{}, err
	}
	tl.Name = name
	err = e.writeDoc(ctx, actorID, tl, "timeline.renamed", events.EventPayload{"name": name})
	return tl, err
}

func (e Engine) DeleteTimeline(ctx context.Context, actorID, projectID, timelineID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTimeline(ctx, tx, projectID, timelineID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "timeline.deleted", projectID, "timeline", timelineID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// writeDoc rewrites one timeline document and appends the audit event in a
// single transaction.
func (e Engine) writeDoc(ctx context.Context, actorID string, tl domain.Timeline, evtType string, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTimelineDoc(ctx, tx, tl); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, evtType, tl.ProjectID, "timeline", tl.ID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func findTask(tasks []domain.Task, id string) *domain.Task {
	for i := range tasks {
		if tasks[i].ID == id {
			return &tasks[i]
		}
		if t := findTask(tasks[i].Subtasks, id); t != nil {
			return t
		}
	}
	return nil
}

// History

// HistoryEntry is one recorded measurement of a task, tagged with the revision
// it was recorded against.
type HistoryEntry struct {
	TimelineID      string  `json:"timeline_id"`
	TimelineName    string  `json:"timeline_name"`
	TaskID          string  `json:"task_id"`
	TaskName        string  `json:"task_name"`
	Progress        float64 `json:"progress_percentage"`
	MeasurementDate string  `json:"measurement_date" format:"date-time"`
	PublicationDate string  `json:"publication_date" format:"date-time"`
}

// History flattens recorded measurements across every revision of the
// project, newest measurement date first. A non-empty taskID restricts the
// result to one task and fails with ErrNotFound when no revision contains it.
func (e Engine) History(ctx context.Context, projectID, taskID string) ([]HistoryEntry, error) {
	revisions, err := e.Repo.ListTimelines(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var entries []HistoryEntry
	seen := taskID == ""
	collect := func(tl domain.Timeline, task domain.Task) {
		for _, m := range task.ActualProgress {
			entries = append(entries, HistoryEntry{
				TimelineID:      tl.ID,
				TimelineName:    tl.Name,
				TaskID:          task.ID,
				TaskName:        task.Name,
				Progress:        m.ProgressPercentage,
				MeasurementDate: m.MeasurementDate,
				PublicationDate: m.PublicationDate,
			})
		}
	}
	for _, tl := range revisions {
		if taskID != "" {
			task := findTask(tl.Tasks, taskID)
			if task == nil {
				continue
			}
			seen = true
			collect(tl, *task)
			continue
		}
		var walk func([]domain.Task)
		walk = func(tasks []domain.Task) {
			for _, t := range tasks {
				collect(tl, t)
				walk(t.Subtasks)
			}
		}
		walk(tl.Tasks)
	}
	if !seen {
		return nil, repo.ErrNotFound
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].MeasurementDate != entries[j].MeasurementDate {
			return entries[i].MeasurementDate > entries[j].MeasurementDate
		}
		return entries[i].TimelineID < entries[j].TimelineID
	})
	return entries, nil
}
