// Package export streams a task's collected posts out as JSON or CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"weibo-harvester/internal/platform/clock"
	perr "weibo-harvester/internal/platform/errors"
	"weibo-harvester/internal/services/harvester/domain"
)

// Format names a supported export encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

var csvHeader = []string{
	"post_id", "text", "created_at", "author_uid", "author_screen_name",
	"reposts", "comments", "likes",
}

// Request names the task and window an export covers
type Request struct {
	TaskID    string
	Keyword   string
	Posts     []domain.Post
	ExportedAt time.Time
}

// Stream writes every post in the request to w in the given format, in the order given.
func Stream(w io.Writer, req Request, format Format) error {
	switch format {
	case FormatJSON:
		return streamJSON(w, req)
	case FormatCSV:
		return streamCSV(w, req.Posts)
	default:
		return perr.InvalidFormatf("unsupported export format %q", format)
	}
}

// jsonDocument is the top-level export object: {task_id, keyword, exported_at, total_posts, posts}
type jsonDocument struct {
	TaskID     string     `json:"task_id"`
	Keyword    string     `json:"keyword"`
	ExportedAt string     `json:"exported_at"`
	TotalPosts int        `json:"total_posts"`
	Posts      []jsonPost `json:"posts"`
}

type jsonPost struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	CreatedAt        string `json:"created_at"`
	AuthorUID        string `json:"author_uid"`
	AuthorScreenName string `json:"author_screen_name"`
	RepostsCount     int64  `json:"reposts_count"`
	CommentsCount    int64  `json:"comments_count"`
	AttitudesCount   int64  `json:"attitudes_count"`
}

func streamJSON(w io.Writer, req Request) error {
	doc := jsonDocument{
		TaskID:     req.TaskID,
		Keyword:    req.Keyword,
		ExportedAt: clock.FormatWire(req.ExportedAt),
		TotalPosts: len(req.Posts),
		Posts:      make([]jsonPost, len(req.Posts)),
	}
	for i, p := range req.Posts {
		doc.Posts[i] = toJSONPost(p)
	}
	return json.NewEncoder(w).Encode(doc)
}

func toJSONPost(p domain.Post) jsonPost {
	return jsonPost{
		ID:               p.ID,
		Text:             p.Text,
		CreatedAt:        clock.FormatWire(p.CreatedAt),
		AuthorUID:        p.AuthorUID,
		AuthorScreenName: p.AuthorScreenName,
		RepostsCount:     p.RepostsCount,
		CommentsCount:    p.CommentsCount,
		AttitudesCount:   p.AttitudesCount,
	}
}

// streamCSV escapes per RFC 4180 via the standard library csv writer: fields
// containing a comma, quote, or newline are double-quoted with embedded quotes doubled.
func streamCSV(w io.Writer, posts []domain.Post) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range posts {
		row := []string{
			p.ID,
			p.Text,
			clock.FormatWire(p.CreatedAt),
			p.AuthorUID,
			p.AuthorScreenName,
			strconv.FormatInt(p.RepostsCount, 10),
			strconv.FormatInt(p.CommentsCount, 10),
			strconv.FormatInt(p.AttitudesCount, 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FileResult is the export command's output: where the file landed and its size
type FileResult struct {
	FilePath      string
	ExportedCount int
	FileSize      int64
	ExportedAt    time.Time
}

// ToFile renders a Request to a file under dir, named by task id, format, and a
// caller-supplied timestamp (so results are deterministic and collision-free across
// repeated exports of the same task). The destination directory is caller-owned; the
// scheduler defaults it to its own working directory.
func ToFile(dir string, req Request, format Format) (FileResult, error) {
	if len(req.Posts) == 0 {
		return FileResult{}, perr.NoDataf("task %s has no posts to export", req.TaskID)
	}

	ext := "json"
	if format == FormatCSV {
		ext = "csv"
	}
	name := fmt.Sprintf("%s_%s.%s", req.TaskID, clock.FormatWire(req.ExportedAt), ext)
	name = sanitizeFileName(name)
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return FileResult{}, perr.FileSystemf("create export file: %v", err)
	}
	defer f.Close()

	if err := Stream(f, req, format); err != nil {
		return FileResult{}, perr.FileSystemf("write export file: %v", err)
	}

	info, err := f.Stat()
	if err != nil {
		return FileResult{}, perr.FileSystemf("stat export file: %v", err)
	}

	return FileResult{
		FilePath:      path,
		ExportedCount: len(req.Posts),
		FileSize:      info.Size(),
		ExportedAt:    req.ExportedAt,
	}, nil
}

func sanitizeFileName(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r == ':' || r == ' ':
			out = append(out, '-')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

// ContentType returns the MIME type for a format
func ContentType(f Format) string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}
