package httpapi

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/travel"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	tagAmount   = "amount"
	tagStayDate = "staydate"
)

var registerOnce sync.Once

// registerValidators adds the amount and stay-date tags to gin's validator engine.
func registerValidators() {
	registerOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = engine.RegisterValidation(tagAmount, func(field validator.FieldLevel) bool {
			_, err := travel.ParseAmountCents(field.Field().String())
			return err == nil
		})
		_ = engine.RegisterValidation(tagStayDate, func(field validator.FieldLevel) bool {
			_, err := travel.ParseStayDate(field.Field().String())
			return err == nil
		})
	})
}

// flexibleAmount accepts both "100.00" and 100 in JSON bodies.
type flexibleAmount string

func (amount *flexibleAmount) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*amount = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*amount = flexibleAmount(text)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return err
	}
	*amount = flexibleAmount(number.String())
	return nil
}

func (amount flexibleAmount) cents() (travel.AmountCents, error) {
	return travel.ParseAmountCents(string(amount))
}
