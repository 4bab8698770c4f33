package nsf

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"awardgraph/pkg/common"
)

const defaultBaseURL = "https://api.nsf.gov/services/v1"

// printFields limits the award payload to the fields the normalizer reads.
const printFields = "id,title,startDate,expDate,fundsObligatedAmt," +
	"piFirstName,piLastName,piEmail,coPDPI,awardeeName,awardeeCity," +
	"awardeeStateCode,fundProgramName,primaryProgram,abstractText"

// Client talks to the NSF awards API, the external source of truth for
// award records. The API is read-only; every call is safe to retry.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClientParams configures a Client. BaseURL defaults to the public NSF
// endpoint when empty.
type NewClientParams struct {
	BaseURL string
	Timeout time.Duration
}

func NewClient(params NewClientParams) *Client {
	baseURL := params.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type awardsResponse struct {
	Response struct {
		Award    []common.RawRecord `json:"award"`
		Metadata struct {
			TotalCount any `json:"totalCount"`
		} `json:"metadata"`
	} `json:"response"`
}

// FetchAwards queries the awards endpoint with the given filter parameters
// and returns the raw records plus the API's total match count. Parameters
// are passed through as-is except rpp and printFields, which get defaults.
func (c *Client) FetchAwards(ctx context.Context, params map[string]string) ([]common.RawRecord, int, error) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	if values.Get("rpp") == "" {
		values.Set("rpp", "25")
	}
	if values.Get("printFields") == "" {
		values.Set("printFields", printFields)
	}

	reqURL := fmt.Sprintf("%s/awards.json?%s", c.baseURL, values.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("awards request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("awards request returned status %d", res.StatusCode)
	}

	data := new(awardsResponse)
	if err := json.NewDecoder(res.Body).Decode(data); err != nil {
		return nil, 0, fmt.Errorf("failed to decode awards response: %w", err)
	}

	return data.Response.Award, parseTotalCount(data.Response.Metadata.TotalCount), nil
}

// parseTotalCount tolerates the API returning totalCount as either a
// number or a string.
func parseTotalCount(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
