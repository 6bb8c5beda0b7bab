package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLogger_CategoryLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		DefaultLevel:   LevelWarn,
		CategoryLevels: map[Category]Level{CategoryDDL: LevelDebug, CategoryShell: LevelOff},
		Output:         &buf,
	})

	l.SQL().Info("sql info")
	l.SQL().Warn("sql warn", "rows", 3)
	l.DDL().Debug("ddl debug")
	l.Shell().Error("shell error", errors.New("boom"))
	l.Catalog().WithFields("table", "roads").Warn("catalog warn", "srs", 4326)

	out := buf.String()
	for _, absent := range []string{"sql info", "shell error"} {
		if strings.Contains(out, absent) {
			t.Errorf("%q should have been filtered:\n%s", absent, out)
		}
	}
	for _, present := range []string{"WARN  [sql] sql warn rows=3", "DEBUG [ddl] ddl debug", "[catalog] catalog warn srs=4326 table=roads"} {
		if !strings.Contains(out, present) {
			t.Errorf("missing %q:\n%s", present, out)
		}
	}
	if l.Logged() != 3 {
		t.Errorf("Logged() = %d, want 3", l.Logged())
	}
	if l.Enabled(CategoryShell, LevelError) || !l.Enabled(CategorySystem, LevelError) {
		t.Error("Enabled disagrees with the configured levels")
	}
}

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{DefaultLevel: LevelDebug, Output: &buf, Format: FormatJSON, IncludeCaller: true})

	l.DDL().Error("rebuild failed", errors.New("locked"), "table", "roads", "dangling")

	var e Entry
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if e.Level != "ERROR" || e.Category != CategoryDDL || e.Message != "rebuild failed" || e.Error != "locked" {
		t.Errorf("entry = %+v", e)
	}
	if e.Fields["table"] != "roads" || len(e.Fields) != 1 {
		t.Errorf("fields = %v", e.Fields)
	}
	if !strings.HasPrefix(e.Caller, "log_test.go:") {
		t.Errorf("caller = %q", e.Caller)
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.System().Error("dropped", errors.New("x"))
	if l.Logged() != 0 {
		t.Errorf("Discard logged %d entries", l.Logged())
	}

	var nilLogger *Logger
	nilLogger.log(LevelError, CategorySystem, "ignored", nil)
}

func TestParse(t *testing.T) {
	for in, want := range map[string]Level{"debug": LevelDebug, "": LevelInfo, "Warning": LevelWarn, "err": LevelError, "none": LevelOff} {
		if got, err := ParseLevel(in); err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel accepted an unknown level")
	}
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat = %v, %v", f, err)
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Error("ParseFormat accepted yaml")
	}
}
