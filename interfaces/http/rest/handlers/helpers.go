package handlers

import (
	"errors"
	"io"
	"net/http"

	"referralnet-backend/pkg/common"
	apperrors "referralnet-backend/pkg/errors"
	"referralnet-backend/pkg/utils"
)

const maxBodyBytes = 1 << 20

// decode reads and validates a JSON body. An empty body is accepted when
// optional is set.
func decode(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) error {
	if err := common.ParseJSONBody(w, r, v, maxBodyBytes); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.NewValidationError("invalid request body: " + err.Error()).WithCode("INVALID_BODY")
	}
	if err := utils.ValidateStruct(v); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	return nil
}
