package types

import (
	"encoding/json"

	"calcclient/internal/models"
)

// Тела запросов и ответов HTTP API сервиса вычислений

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
}

type CalculateRequest struct {
	Expression string `json:"expression"`
}

type CalculateResponse struct {
	ID models.ID `json:"id"`
}

type ExpressionResponse struct {
	Expressions []models.Expression `json:"expressions"`
	Total       *int                `json:"total,omitempty"`
}

// UnmarshalJSON принимает и объект {"expressions": [...]}, и голый массив выражений
func (r *ExpressionResponse) UnmarshalJSON(data []byte) error {
	var list []models.Expression
	if err := json.Unmarshal(data, &list); err == nil {
		*r = ExpressionResponse{Expressions: list}
		return nil
	}

	type plain ExpressionResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = ExpressionResponse(p)
	return nil
}

type TasksResponse struct {
	Tasks []models.Task `json:"tasks"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type TokenInfoResponse struct {
	ExpirationMinutes string `json:"expirationMinutes"`
}
