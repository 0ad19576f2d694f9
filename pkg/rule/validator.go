// Package rule 提供结构体和字段验证功能的封装，基于 go-playground/validator 实现.
//
// 标签名为 rule，错误中的字段名取 json 标签.引擎独立于 gin 的绑定校验：
// 请求结构体用 binding 标签，领域输入用 rule 标签，路径参数覆盖的字段不会在绑定时被拒绝.
package rule

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid"
)

const tagName = "rule"

// 领域内置规则.
const (
	TagSyncKey    = "synckey"     // 26 位 ULID
	TagEntityType = "entity_type" // SyncMetadata 支持的实体类型
)

var (
	inst *validator.Validate
	once sync.Once
)

// initValidator 创建引擎并注册领域规则.
func initValidator() {
	inst = validator.New()
	inst.SetTagName(tagName)
	inst.RegisterTagNameFunc(jsonName)

	_ = inst.RegisterValidation(TagSyncKey, func(fl validator.FieldLevel) bool {
		_, err := ulid.ParseStrict(fl.Field().String())
		return err == nil
	})
	inst.RegisterAlias(TagEntityType, "oneof=platform project folder file row tm")
}

// jsonName 错误中使用 json 字段名，"-" 表示忽略.
func jsonName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}

	if name == "" {
		return f.Name
	}

	return name
}

// lazyInit 初始化全局 validator（幂等）.
func lazyInit() {
	once.Do(initValidator)
}

// Engine 返回全局 *validator.Validate，若未初始化则先初始化.
func Engine() *validator.Validate {
	lazyInit()

	return inst
}

// RegisterValidation 代理 RegisterValidation，确保已初始化.
func RegisterValidation(tag string, fn validator.Func, opts ...bool) error {
	lazyInit()

	return inst.RegisterValidation(tag, fn, opts...)
}

// ValidationErrors 字段名到可读错误信息.
type ValidationErrors map[string]string

// Error 按字段名排序输出，保证同一输入的信息稳定.
func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}

	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v[f])
	}

	return strings.Join(parts, "; ")
}

// Errors 将 validator 的错误转换为 ValidationErrors；其他错误原样返回.
func Errors(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}

	out := make(ValidationErrors, len(ves))

	for _, fe := range ves {
		msg := "failed on " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}

		out[fieldPath(fe)] = msg
	}

	return out
}

// fieldPath 去掉顶层结构体名，保留嵌套路径，例如 rows[0].source.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}

	return fe.Field()
}

// ValidateStruct 对结构体执行完整校验，失败时返回 ValidationErrors.
func ValidateStruct(s any) error {
	lazyInit()

	if err := inst.Struct(s); err != nil {
		return Errors(err)
	}

	return nil
}

// ValidateVar 按规则对单个变量校验，例如: ValidateVar(key, "required,synckey").
func ValidateVar(field any, tag string) error {
	lazyInit()

	return inst.Var(field, tag)
}

// RegisterAlias 包装 RegisterAlias，便于注册别名规则.
func RegisterAlias(alias, rules string) {
	lazyInit()

	inst.RegisterAlias(alias, rules)
}
