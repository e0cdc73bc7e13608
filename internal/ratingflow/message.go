package ratingflow

import (
	"errors"

	"github.com/hitoshi/ministers/internal/model"
)

// messageOf は通知に表示する文言を返す。
func messageOf(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Action != "" {
			return apiErr.Message + " " + apiErr.Action
		}
		return apiErr.Message
	}
	return "通信に失敗しました。時間をおいて再度お試しください。"
}
