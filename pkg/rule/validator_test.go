package rule_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/rule"
)

type fileInput struct {
	ProjectID int64  `json:"project_id" rule:"required,gt=0"`
	Name      string `json:"name"       rule:"required,max=8"`
	Lang      string `json:"lang"       rule:"omitempty,bcp47_language_tag"`
}

type batch struct {
	Rows []row `json:"rows" rule:"required,dive"`
}

type row struct {
	Source string `json:"source" rule:"required"`
}

// TestEngine 测试 Engine 函数返回非 nil 实例.
func TestEngine(t *testing.T) {
	if rule.Engine() == nil {
		t.Error("Engine() returned nil")
	}
}

// TestValidateStruct 测试字段名取自 json 标签.
func TestValidateStruct(t *testing.T) {
	if err := rule.ValidateStruct(fileInput{ProjectID: 1, Name: "ui.json", Lang: "de-DE"}); err != nil {
		t.Errorf("valid input: %v", err)
	}

	err := rule.ValidateStruct(fileInput{Name: "far-too-long.json", Lang: "not a tag"})

	var ves rule.ValidationErrors
	if !errors.As(err, &ves) {
		t.Fatalf("error type = %T, want ValidationErrors", err)
	}

	for _, f := range []string{"project_id", "name", "lang"} {
		if _, ok := ves[f]; !ok {
			t.Errorf("missing field %q in %v", f, ves)
		}
	}

	if got := ves["name"]; got != "failed on max=8" {
		t.Errorf("name message = %q", got)
	}
}

// TestNestedPath 测试嵌套字段保留路径.
func TestNestedPath(t *testing.T) {
	err := rule.ValidateStruct(batch{Rows: []row{{Source: "ok"}, {}}})

	var ves rule.ValidationErrors
	if !errors.As(err, &ves) {
		t.Fatalf("error type = %T, want ValidationErrors", err)
	}

	if _, ok := ves["rows[1].source"]; !ok {
		t.Errorf("fields = %v, want rows[1].source", ves)
	}
}

// TestErrorStable 测试错误信息按字段排序.
func TestErrorStable(t *testing.T) {
	ves := rule.ValidationErrors{"name": "failed on required", "lang": "failed on bcp47_language_tag"}

	if got := ves.Error(); !strings.HasPrefix(got, "lang:") {
		t.Errorf("Error() = %q, want lang first", got)
	}
}

// TestSyncKey 测试 synckey 规则.
func TestSyncKey(t *testing.T) {
	if err := rule.ValidateVar(domain.NewSyncKey(time.Now()), "required,"+rule.TagSyncKey); err != nil {
		t.Errorf("fresh sync key rejected: %v", err)
	}

	for _, bad := range []string{"", "abc", strings.Repeat("z", 26)} {
		if err := rule.ValidateVar(bad, "required,"+rule.TagSyncKey); err == nil {
			t.Errorf("sync key %q accepted", bad)
		}
	}
}

// TestEntityType 测试实体类型别名.
func TestEntityType(t *testing.T) {
	if err := rule.ValidateVar(domain.EntityFile, rule.TagEntityType); err != nil {
		t.Errorf("file rejected: %v", err)
	}

	if err := rule.ValidateVar(domain.EntityTrash, rule.TagEntityType); err == nil {
		t.Error("trash accepted as sync entity")
	}
}

// TestRegisterValidation 测试注册自定义验证.
func TestRegisterValidation(t *testing.T) {
	err := rule.RegisterValidation("even_length", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String())%2 == 0
	})
	if err != nil {
		t.Fatalf("register validation: %v", err)
	}

	if err := rule.ValidateVar("test", "even_length"); err != nil {
		t.Errorf("even length rejected: %v", err)
	}

	if err := rule.ValidateVar("test1", "even_length"); err == nil {
		t.Error("odd length accepted")
	}
}
