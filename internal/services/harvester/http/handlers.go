// Package harvesterhttp mounts the 7-command surface (create_task, start_crawl,
// pause_crawl, get_progress, list_tasks, export, delete_task) onto a platform Router.
package harvesterhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	perr "weibo-harvester/internal/platform/errors"
	phttp "weibo-harvester/internal/platform/net/http"
	"weibo-harvester/internal/services/harvester/domain"
	"weibo-harvester/internal/services/harvester/export"
	"weibo-harvester/internal/services/harvester/scheduler"
)

// Mount wires every harvester command onto r under /tasks
func Mount(r phttp.Router, s *scheduler.Scheduler) {
	r.Route("/tasks", func(r phttp.Router) {
		phttp.PostJSON(r, "/", createTask(s))
		phttp.GetJSON(r, "/", listTasks(s))
		r.Post("/{task_id}/start", phttp.JSONHandlerNoBody(startCrawl(s)))
		r.Post("/{task_id}/pause", phttp.JSONHandlerNoBody(pauseCrawl(s)))
		phttp.GetJSON(r, "/{task_id}/progress", getProgress(s))
		phttp.GetJSON(r, "/{task_id}/export", exportTask(s))
		phttp.DeleteJSON(r, "/{task_id}", deleteTask(s))
	})
}

func taskIDFrom(r *http.Request) string { return chi.URLParam(r, "task_id") }

type createTaskRequest struct {
	Keyword        string `json:"keyword" validate:"required"`
	EventStartTime string `json:"event_start_time" validate:"required"`
	UID            string `json:"uid" validate:"required"`
}

type createTaskResponse struct {
	TaskID    string    `json:"task_id"`
	CreatedAt time.Time `json:"created_at"`
}

func createTask(s *scheduler.Scheduler) func(*http.Request, createTaskRequest) (any, error) {
	return func(r *http.Request, in createTaskRequest) (any, error) {
		eventStart, err := time.Parse(time.RFC3339, in.EventStartTime)
		if err != nil {
			return nil, perr.InvalidTimef("event_start_time must be ISO-8601: %v", err)
		}
		task, err := s.CreateTask(r.Context(), in.Keyword, eventStart, in.UID)
		if err != nil {
			return nil, err
		}
		return createTaskResponse{TaskID: task.ID, CreatedAt: task.CreatedAt}, nil
	}
}

type startCrawlResponse struct {
	Message   string `json:"message"`
	Direction string `json:"direction"`
}

func startCrawl(s *scheduler.Scheduler) func(*http.Request) (any, error) {
	return func(r *http.Request) (any, error) {
		msg, dir, err := s.StartCrawl(r.Context(), taskIDFrom(r))
		if err != nil {
			return nil, err
		}
		return startCrawlResponse{Message: msg, Direction: string(dir)}, nil
	}
}

type pauseCrawlResponse struct {
	Message    string             `json:"message"`
	Checkpoint *domain.Checkpoint `json:"checkpoint,omitempty"`
}

func pauseCrawl(s *scheduler.Scheduler) func(*http.Request) (any, error) {
	return func(r *http.Request) (any, error) {
		msg, cp, err := s.PauseCrawl(r.Context(), taskIDFrom(r))
		if err != nil {
			return nil, err
		}
		return pauseCrawlResponse{Message: msg, Checkpoint: cp}, nil
	}
}

func getProgress(s *scheduler.Scheduler) func(*http.Request) (any, error) {
	return func(r *http.Request) (any, error) {
		return s.GetProgress(r.Context(), taskIDFrom(r))
	}
}

type listTasksResponse struct {
	Tasks []*domain.Task `json:"tasks"`
	Total int            `json:"total"`
}

func listTasks(s *scheduler.Scheduler) func(*http.Request) (any, error) {
	return func(r *http.Request) (any, error) {
		q := r.URL.Query()
		opts := domain.ListOptions{
			SortBy: domain.SortField(q.Get("sort_by")),
			Order:  domain.SortOrder(q.Get("sort_order")),
		}
		if st := q.Get("status"); st != "" {
			status := domain.Status(st)
			opts.Filter.Status = &status
		}
		if opts.SortBy == "" {
			opts.SortBy = domain.SortByUpdatedAt
		}
		if opts.Order == "" {
			opts.Order = domain.SortDesc
		}
		tasks, total, err := s.ListTasks(r.Context(), opts)
		if err != nil {
			return nil, err
		}
		return listTasksResponse{Tasks: tasks, Total: total}, nil
	}
}

func exportTask(s *scheduler.Scheduler) func(*http.Request) (any, error) {
	return func(r *http.Request) (any, error) {
		q := r.URL.Query()
		format := export.Format(q.Get("format"))
		if format == "" {
			format = export.FormatJSON
		}

		var lo, hi *time.Time
		if v := q.Get("time_range_start"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, perr.InvalidTimef("time_range_start must be ISO-8601: %v", err)
			}
			lo = &t
		}
		if v := q.Get("time_range_end"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, perr.InvalidTimef("time_range_end must be ISO-8601: %v", err)
			}
			hi = &t
		}

		result, err := s.Export(r.Context(), taskIDFrom(r), format, lo, hi)
		if err != nil {
			return nil, err
		}
		return struct {
			FilePath      string    `json:"file_path"`
			ExportedCount int       `json:"exported_count"`
			FileSize      int64     `json:"file_size"`
			ExportedAt    time.Time `json:"exported_at"`
		}{result.FilePath, result.ExportedCount, result.FileSize, result.ExportedAt}, nil
	}
}

func deleteTask(s *scheduler.Scheduler) func(*http.Request) (any, error) {
	return func(r *http.Request) (any, error) {
		if err := s.DeleteTask(r.Context(), taskIDFrom(r)); err != nil {
			return nil, err
		}
		return struct{}{}, nil
	}
}
