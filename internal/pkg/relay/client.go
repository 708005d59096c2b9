package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"github.com/vreid/chogrunner/internal/pkg/chain"
	pkgcommon "github.com/vreid/chogrunner/internal/pkg/common"
)

// Submission is what a caller learns from the relay. Status is TxSuccess or
// TxUnconfirmed; every other outcome is an error.
type Submission struct {
	Status   chain.TxStatus
	TxHash   string
	Explorer string
	Message  string

	Result *Result
}

// Client calls a relay over HTTP.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(3 * time.Minute). //nolint:mnd
			SetHeader("Content-Type", "application/json"),
	}
}

func (c *Client) SubmitScore(ctx context.Context, player common.Address, score uint64) (*Submission, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(NewScoreSubmissionRequest(player, score)).
		Post("/api/submit-score")
	if err != nil {
		return nil, pkgcommon.WrapError(pkgcommon.KindUpstream, "Score relay unreachable.", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		var result Result

		err = json.Unmarshal(resp.Body(), &result)
		if err != nil {
			return nil, pkgcommon.WrapError(pkgcommon.KindUpstream, "Invalid score relay response.", err)
		}

		return &Submission{
			Status:   chain.TxSuccess,
			TxHash:   result.TxHash,
			Explorer: result.Explorer,
			Message:  result.Message,
			Result:   &result,
		}, nil
	case http.StatusAccepted:
		failure := decodeError(resp)

		return &Submission{
			Status:   chain.TxUnconfirmed,
			TxHash:   failure.TxHash,
			Explorer: failure.Explorer,
			Message:  failure.Message,
		}, nil
	}

	return nil, decodeError(resp)
}

func decodeError(resp *resty.Response) *pkgcommon.Error {
	var failure pkgcommon.Error

	err := json.Unmarshal(resp.Body(), &failure)
	if err != nil || failure.Message == "" {
		failure.Message = fmt.Sprintf("Score relay error %d", resp.StatusCode())
	}

	failure.Kind = kindFromResponse(resp.StatusCode(), &failure)

	return &failure
}

func kindFromResponse(status int, failure *pkgcommon.Error) pkgcommon.Kind {
	switch {
	case status == http.StatusAccepted:
		return pkgcommon.KindTimeout
	case status == http.StatusBadRequest && failure.TxHash != "":
		return pkgcommon.KindReverted
	case status == http.StatusBadRequest:
		return pkgcommon.KindValidation
	case status == http.StatusInternalServerError && failure.Required != "":
		return pkgcommon.KindInsufficientBalance
	case status == http.StatusInternalServerError:
		return pkgcommon.KindInternal
	}

	return pkgcommon.KindUpstream
}
