package university

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/hitoshi/jikanwari/internal/model"
)

// maxResponseBody はレスポンスボディの最大読み取りサイズ（5MB）。
const maxResponseBody = 5 * 1024 * 1024

// Client は大学の時間割APIのクライアント。
// 時間割リスト・時間割内容・現在週番号の3つのエンドポイントを呼び出し、
// 失敗を分類済みのAPIErrorとして返す。
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientにはSSRF防止機能付きのクライアントを渡すことを想定している。
func NewClient(httpClient *http.Client, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		logger:     logger,
	}
}

// FetchTimetables は対象の時間割リストを取得する。
// 必須フィールドを欠く不正なDTOは除外して返す。リストが0件でもエラーにはしない
// （空リストの扱いはオーケストレータが決める）。
func (c *Client) FetchTimetables(ctx context.Context, apiID string, subjectType model.SubjectType) ([]*model.Timetable, error) {
	q := url.Values{}
	q.Set("subject", apiID)
	q.Set("type", string(subjectType))

	var resp timetableListResponse
	if err := c.getJSON(ctx, "/timetables", q, &resp); err != nil {
		return nil, err
	}

	timetables := make([]*model.Timetable, 0, len(resp.Timetables))
	for _, dto := range resp.Timetables {
		tt := dto.ToModel()
		if tt == nil {
			c.logger.Warn("不正な時間割DTOを除外しました",
				slog.String("api_id", apiID),
			)
			continue
		}
		timetables = append(timetables, tt)
	}

	return timetables, nil
}

// FetchSchedule は1つの時間割の内容を取得する。
func (c *Client) FetchSchedule(ctx context.Context, apiID string, subjectType model.SubjectType, timetableID string) (*ScheduleDTO, error) {
	q := url.Values{}
	q.Set("subject", apiID)
	q.Set("type", string(subjectType))
	q.Set("timetable", timetableID)

	var resp ScheduleDTO
	if err := c.getJSON(ctx, "/schedule", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchCurrentWeekNumber は大学側が「現在」とみなす週番号を取得する。
// 繰り返し情報を持たない周期時間割の正規化時に位相合わせのために呼ばれる。
func (c *Client) FetchCurrentWeekNumber(ctx context.Context, apiID string, startDate time.Time, typeHint model.TimetableType) (int, error) {
	q := url.Values{}
	q.Set("subject", apiID)
	q.Set("date", startDate.Format(dateLayout))
	q.Set("hint", string(typeHint))

	var resp currentWeekResponse
	if err := c.getJSON(ctx, "/current-week", q, &resp); err != nil {
		return 0, err
	}
	if resp.Week == nil || *resp.Week < 1 {
		return 0, model.NewSerializationError("週番号が欠落しています")
	}
	return *resp.Week, nil
}

// getJSON はGETリクエストを実行し、レスポンスJSONをoutにデコードする。
// 失敗は仕様のエラー分類（ネットワーク・タイムアウト・HTTP・シリアライズ）に写像する。
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.NewUnexpectedError(fmt.Errorf("リクエストの作成に失敗: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Jikanwari/1.0 Schedule Sync")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		classified := classifyTransportError(err)
		c.logger.Error("大学APIの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("code", model.CodeOf(classified)),
			slog.String("error", err.Error()),
		)
		return classified
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("大学APIがエラーステータスを返しました",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return model.NewHTTPError(resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return model.NewNetworkError(fmt.Sprintf("レスポンスボディの読み取りに失敗: %s", err.Error()))
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("大学APIのレスポンスのパースに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return model.NewSerializationError(err.Error())
	}

	return nil
}

// classifyTransportError はHTTPクライアントのエラーを仕様のエラー分類に写像する。
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return model.NewTimeoutError()
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return model.NewTimeoutError()
	}

	return model.NewNetworkError(err.Error())
}
