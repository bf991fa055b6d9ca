package handler

import (
	"errors"
	"sync"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"
	"github.com/antrhizom/prompt-managerin/backend/internal/service/session"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterValidators 向 gin 的校验器注册自定义规则，可重复调用。
//   - access_code：允许旧前缀 user_ 与小写，规范化后必须是 6 位 A-Z0-9。
//   - reaction：五个固定反馈符号之一。
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = errors.New("gin validator engine is not go-playground/validator")
			return
		}
		if err := v.RegisterValidation("access_code", func(fl validator.FieldLevel) bool {
			code, _ := session.NormalizeCode(fl.Field().String())
			return session.ValidCode(code)
		}); err != nil {
			registerErr = err
			return
		}
		registerErr = v.RegisterValidation("reaction", func(fl validator.FieldLevel) bool {
			return promptdomain.IsReaction(fl.Field().String())
		})
	})
	return registerErr
}

// fieldErrors 把校验错误整理为 字段 -> 规则 的映射，放进响应 details。
func fieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
