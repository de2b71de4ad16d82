package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wrongjunior/updaterelay/internal/domain"
)

// APIClient обращается к HTTP API сервера: публикация и чтение истории.
type APIClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// APIError описывает ответ сервера с кодом ошибки.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// NewAPIClient создаёт клиента для сервера по адресу baseURL.
func NewAPIClient(baseURL string, logger *slog.Logger) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// Post публикует обновление и возвращает созданную запись.
func (c *APIClient) Post(ctx context.Context, req domain.SubmitRequest) (domain.Update, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.Update{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/update", bytes.NewReader(body))
	if err != nil {
		return domain.Update{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out struct {
		Success bool          `json:"success"`
		Update  domain.Update `json:"update"`
	}
	if err := c.do(httpReq, http.StatusCreated, &out); err != nil {
		return domain.Update{}, err
	}
	c.logger.Info("Update posted", "id", out.Update.ID, "type", out.Update.Type)
	return out.Update, nil
}

// Updates получает текущую историю сервера, новые первыми.
func (c *APIClient) Updates(ctx context.Context) ([]domain.Update, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/updates", nil)
	if err != nil {
		return nil, err
	}
	updates := []domain.Update{}
	if err := c.do(httpReq, http.StatusOK, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *APIClient) do(req *http.Request, want int, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.TransportError{Op: req.Method + " " + req.URL.Path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var body struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: body.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
