// Package tibber reads the energy provider's GraphQL API: historical
// consumption and the current price by query, live measurements by
// subscription.
package tibber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/fritz-collector/internal/pkg/config"
	"github.com/anicoll/fritz-collector/internal/pkg/model"
)

const (
	requestTimeout = 30 * time.Second
	userAgent      = "fritz-collector/1.0"
)

// ErrNoHome is returned when the account has no home.
var ErrNoHome = errors.New("no home in account")

const viewerQuery = `{
  viewer {
    websocketSubscriptionUrl
    homes {
      id
      features { realTimeConsumptionEnabled }
      currentSubscription { priceInfo { current { total energy tax startsAt } } }
      consumption(resolution: HOURLY, last: %d) {
        nodes { from to cost unitPrice unitPriceVAT consumption consumptionUnit }
      }
    }
  }
}`

type Client struct {
	cfg    *config.TibberConfig
	http   *http.Client
	logger *zap.Logger
}

func NewClient(cfg *config.TibberConfig) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: requestTimeout},
		logger: zap.L(),
	}
}

func (c *Client) Configured() bool {
	return c.cfg.Token != ""
}

// Home is the first home of the account as reported by one query.
type Home struct {
	ID              string
	RealTimeEnabled bool
	WebsocketURL    string
	CurrentPrice    *model.ProviderPrice
	Consumption     []model.ConsumptionRecord
}

type graphQLError struct {
	Message string `json:"message"`
}

type viewerResponse struct {
	Data struct {
		Viewer struct {
			WebsocketSubscriptionURL string `json:"websocketSubscriptionUrl"`
			Homes                    []struct {
				ID       string `json:"id"`
				Features struct {
					RealTimeConsumptionEnabled bool `json:"realTimeConsumptionEnabled"`
				} `json:"features"`
				CurrentSubscription *struct {
					PriceInfo struct {
						Current *struct {
							Total    *float64   `json:"total"`
							Energy   *float64   `json:"energy"`
							Tax      *float64   `json:"tax"`
							StartsAt *time.Time `json:"startsAt"`
						} `json:"current"`
					} `json:"priceInfo"`
				} `json:"currentSubscription"`
				Consumption *struct {
					Nodes []struct {
						From            time.Time `json:"from"`
						To              time.Time `json:"to"`
						Cost            *float64  `json:"cost"`
						UnitPrice       *float64  `json:"unitPrice"`
						UnitPriceVAT    *float64  `json:"unitPriceVAT"`
						Consumption     *float64  `json:"consumption"`
						ConsumptionUnit *string   `json:"consumptionUnit"`
					} `json:"nodes"`
				} `json:"consumption"`
			} `json:"homes"`
		} `json:"viewer"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// Home queries the last hours of consumption and the current price.
func (c *Client) Home(ctx context.Context, hours int) (*Home, error) {
	if !c.Configured() {
		return nil, config.ErrNotConfigured
	}
	var resp viewerResponse
	if err := c.query(ctx, fmt.Sprintf(viewerQuery, hours), &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("graphql errors: %s", strings.Join(msgs, "; "))
	}
	homes := resp.Data.Viewer.Homes
	if len(homes) == 0 {
		return nil, ErrNoHome
	}
	if len(homes) > 1 {
		c.logger.Debug("account has several homes, using the first", zap.Int("homes", len(homes)))
	}

	h := homes[0]
	out := &Home{
		ID:              h.ID,
		RealTimeEnabled: h.Features.RealTimeConsumptionEnabled,
		WebsocketURL:    resp.Data.Viewer.WebsocketSubscriptionURL,
	}
	if h.CurrentSubscription != nil && h.CurrentSubscription.PriceInfo.Current != nil {
		cur := h.CurrentSubscription.PriceInfo.Current
		if cur.StartsAt != nil {
			out.CurrentPrice = &model.ProviderPrice{StartsAt: *cur.StartsAt, Total: cur.Total, Energy: cur.Energy, Tax: cur.Tax}
		}
	}
	if h.Consumption != nil {
		for _, n := range h.Consumption.Nodes {
			out.Consumption = append(out.Consumption, model.ConsumptionRecord{
				From:            n.From,
				To:              n.To,
				ConsumptionKWh:  n.Consumption,
				ConsumptionUnit: n.ConsumptionUnit,
				Cost:            n.Cost,
				UnitPrice:       n.UnitPrice,
				UnitPriceVAT:    n.UnitPriceVAT,
			})
		}
	}
	return out, nil
}

func (c *Client) query(ctx context.Context, query string, out any) error {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid graphql response: %w", err)
	}
	return nil
}
