package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

// mockExecutor はExecutorのモック。クエリと引数を記録する。
type mockExecutor struct {
	calls  int
	query  string
	args   []any
	result sql.Result
	err    error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	m.calls++
	m.query = query
	m.args = args
	return m.result, m.err
}

type purgeRecorder struct {
	purged []int
}

func (p *purgeRecorder) RecordRatingSubmitted(string)          {}
func (p *purgeRecorder) RecordRatingUpdated()                  {}
func (p *purgeRecorder) RecordCatalogQuery(time.Duration)      {}
func (p *purgeRecorder) RecordWikiFetchSuccess(string)         {}
func (p *purgeRecorder) RecordWikiFetchFailure(string, string) {}
func (p *purgeRecorder) RecordWikiFetchLatency(time.Duration)  {}
func (p *purgeRecorder) RecordWikiPurged(n int)                { p.purged = append(p.purged, n) }
func (p *purgeRecorder) RecordHTTPStatus(int)                  {}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// logEntries はJSONログを1行ずつデコードする。
func logEntries(buf *bytes.Buffer) []map[string]any {
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err == nil {
			entries = append(entries, entry)
		}
	}
	return entries
}

func TestNewCleanupJob_Defaults(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockExecutor{}, newTestLogger(&buf), nil)

	if job.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", job.RetentionDays)
	}
}

func TestCleanupJob_Run_ExecutesDeleteQuery(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 5}}
	recorder := &purgeRecorder{}
	job := NewCleanupJob(mock, newTestLogger(&buf), recorder)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if !strings.Contains(mock.query, "DELETE FROM minister_wiki") {
		t.Errorf("クエリに 'DELETE FROM minister_wiki' が含まれていない: %s", mock.query)
	}
	if !strings.Contains(mock.query, "fetched_at") {
		t.Errorf("クエリに 'fetched_at' 条件が含まれていない: %s", mock.query)
	}
	if len(mock.args) != 1 || mock.args[0] != "30 days" {
		t.Errorf("interval引数 = %v, want [30 days]", mock.args)
	}
	if len(recorder.purged) != 1 || recorder.purged[0] != 5 {
		t.Errorf("purged metrics = %v, want [5]", recorder.purged)
	}
}

func TestCleanupJob_Run_CustomRetention(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 0}}
	job := NewCleanupJob(mock, newTestLogger(&buf), nil)
	job.RetentionDays = 90

	_ = job.Run(context.Background())

	if mock.args[0] != "90 days" {
		t.Errorf("interval引数 = %v, want %q", mock.args[0], "90 days")
	}
}

func TestCleanupJob_Run_LogsDeletedCount(t *testing.T) {
	for _, n := range []int64{0, 42} {
		var buf bytes.Buffer
		job := NewCleanupJob(&mockExecutor{result: &fakeResult{rowsAffected: n}}, newTestLogger(&buf), nil)

		_ = job.Run(context.Background())

		found := false
		for _, entry := range logEntries(&buf) {
			if entry["deleted_count"] == float64(n) && entry["retention_days"] == float64(30) {
				found = true
			}
		}
		if !found {
			t.Errorf("ログに deleted_count=%d が記録されていない。ログ出力: %s", n, buf.String())
		}
	}
}

func TestCleanupJob_Run_DBFailure(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockExecutor{err: sql.ErrConnDone}, newTestLogger(&buf), nil)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("DBエラー時に Run() は nil でないエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "sql: connection is already closed") {
		t.Errorf("エラーメッセージが期待と異なる: %v", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Start_StopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewCleanupJob(mock, newTestLogger(&buf), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start がキャンセル後に終了しない")
	}
	if mock.calls < 1 {
		t.Error("起動直後に1回実行されるべき")
	}
}
