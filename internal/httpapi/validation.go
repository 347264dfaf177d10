package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/lbruckmann/medispender/internal/catalog"
	"github.com/lbruckmann/medispender/internal/scheduler"
)

// slotTimeDTO is one slot time in schedule requests and responses.
type slotTimeDTO struct {
	Stunde int `json:"stunde" validate:"min=0,max=23"`
	Minute int `json:"minute" validate:"min=0,max=59"`
}

// zeitenRequest retunes any subset of the three dispense times.
type zeitenRequest struct {
	Morgens *slotTimeDTO `json:"morgens"`
	Mittags *slotTimeDTO `json:"mittags"`
	Abends  *slotTimeDTO `json:"abends"`
}

// slots returns only the slot times present in the request.
func (r *zeitenRequest) slots() map[catalog.Timeslot]slotTimeDTO {
	out := make(map[catalog.Timeslot]slotTimeDTO)
	if r.Morgens != nil {
		out[catalog.Morgens] = *r.Morgens
	}
	if r.Mittags != nil {
		out[catalog.Mittags] = *r.Mittags
	}
	if r.Abends != nil {
		out[catalog.Abends] = *r.Abends
	}
	return out
}

// notificationRequest is the payload of the notification test hook.
type notificationRequest struct {
	Message string `json:"message"`
	Type    string `json:"type" validate:"omitempty,oneof=info warning error"`
}

func newValidator() *validatorv10.Validate {
	return validatorv10.New()
}

// bindAndValidate binds the JSON body into out and runs validation. On
// failure it writes a 400 response and returns an error for the handler to
// short-circuit.
func bindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":    false,
			"error": "invalid_request_body",
			"msg":   err.Error(),
		})
		return err
	}
	if err := v.Struct(out); err != nil {
		writeValidationError(c, err)
		return err
	}
	return nil
}

func writeValidationError(c *gin.Context, err error) {
	fields := map[string]string{}
	if ve, ok := err.(validatorv10.ValidationErrors); ok {
		for _, fe := range ve {
			fields[fe.StructNamespace()] = fe.Error()
		}
	} else {
		fields["error"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"ok":     false,
		"error":  "validation_failed",
		"fields": fields,
	})
}

func zeitenResponse(s *scheduler.Schedule) map[string]slotTimeDTO {
	out := make(map[string]slotTimeDTO)
	for slot, t := range s.Times() {
		out[slot.String()] = slotTimeDTO{Stunde: t.Stunde, Minute: t.Minute}
	}
	return out
}
