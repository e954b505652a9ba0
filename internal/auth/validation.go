package auth

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// FieldError は1項目分の検証エラーです。
type FieldError struct {
	Field   string
	Message string
}

// ValidationErrors は入力順に並んだ検証エラーの一覧です。
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, fe := range v {
		msgs = append(msgs, fe.Field+": "+fe.Message)
	}
	return strings.Join(msgs, "; ")
}

// Map は項目名ごとのメッセージ一覧に変換します。
func (v ValidationErrors) Map() map[string][]string {
	out := make(map[string][]string, len(v))
	for _, fe := range v {
		out[fe.Field] = append(out[fe.Field], fe.Message)
	}
	return out
}

// Rule は1つの検証規則です。問題が無ければ空文字を返します。
// error は規則自体が評価できなかった場合（保存先の障害など）に返します。
type Rule func(ctx context.Context, field, value string) (string, error)

// Field は項目名と、その項目に順に適用する規則です。
type Field struct {
	Name  string
	Rules []Rule
}

// Validate は各項目に規則を順に適用します。項目ごとに最初に失敗した規則のメッセージだけを返します。
func Validate(ctx context.Context, input map[string]string, fields ...Field) (ValidationErrors, error) {
	var errs ValidationErrors
	for _, field := range fields {
		value := input[field.Name]
		for _, rule := range field.Rules {
			msg, err := rule(ctx, field.Name, value)
			if err != nil {
				return nil, fmt.Errorf("validate %s: %w", field.Name, err)
			}
			if msg != "" {
				errs = append(errs, FieldError{Field: field.Name, Message: msg})
				break
			}
		}
	}
	return errs, nil
}

// Required は空（空白のみを含む）でないことを要求します。
func Required() Rule {
	return func(_ context.Context, field, value string) (string, error) {
		if strings.TrimSpace(value) == "" {
			return fmt.Sprintf("The %s field is required.", label(field)), nil
		}
		return "", nil
	}
}

// Email はメールアドレスとして妥当な書式を要求します。
func Email() Rule {
	return func(_ context.Context, field, value string) (string, error) {
		if err := validate.Var(value, "required,email"); err != nil {
			return fmt.Sprintf("The %s must be a valid email address.", label(field)), nil
		}
		return "", nil
	}
}

// MinLength は最低 n 文字（ルーン数）を要求します。
func MinLength(n int) Rule {
	return func(_ context.Context, field, value string) (string, error) {
		if utf8.RuneCountInString(value) < n {
			return fmt.Sprintf("The %s must be at least %d characters.", label(field), n), nil
		}
		return "", nil
	}
}

// MaxBytes は最大 n バイトを要求します。bcrypt が扱える長さの上限に使います。
func MaxBytes(n int) Rule {
	return func(_ context.Context, field, value string) (string, error) {
		if len(value) > n {
			return fmt.Sprintf("The %s must not be greater than %d characters.", label(field), n), nil
		}
		return "", nil
	}
}

// Unique は exists が false を返すことを要求します。
func Unique(exists func(ctx context.Context, value string) (bool, error)) Rule {
	return func(ctx context.Context, field, value string) (string, error) {
		taken, err := exists(ctx, value)
		if err != nil {
			return "", err
		}
		if taken {
			return takenMessage(field), nil
		}
		return "", nil
	}
}

func takenMessage(field string) string {
	return fmt.Sprintf("The %s has already been taken.", label(field))
}

func label(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}
