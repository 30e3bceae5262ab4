package httpjson

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bnema/khaos-agent/internal/domain"
	"github.com/bnema/khaos-agent/internal/ports"
	"github.com/tidwall/gjson"
)

const maxBodyBytes = 1 << 20

type Config struct {
	URL string
	// Target is the label reported for the source. Defaults to URL.
	Target string
	// Token, when set, is sent as a bearer credential.
	Token  string
	Client *http.Client
	Clock  ports.Clock
}

// Source reads DAO state from a JSON document served over HTTP.
type Source struct {
	url    string
	target string
	token  string
	client *http.Client
	clock  ports.Clock
}

func New(cfg Config) (*Source, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("parse source url: unsupported scheme %q", parsed.Scheme)
	}
	if cfg.Target == "" {
		cfg.Target = cfg.URL
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock{}
	}

	return &Source{url: cfg.URL, target: cfg.Target, token: cfg.Token, client: cfg.Client, clock: cfg.Clock}, nil
}

func (s *Source) Target() string {
	return s.target
}

func (s *Source) Fetch(ctx context.Context) (domain.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("build state request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return domain.Snapshot{}, err
		}
		return domain.Snapshot{}, &domain.SourceError{Reason: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Snapshot{}, &domain.SourceError{Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.Snapshot{}, &domain.SourceError{Reason: fmt.Sprintf("read body: %v", err)}
	}

	return s.parse(body)
}

func (s *Source) parse(body []byte) (domain.Snapshot, error) {
	if !gjson.ValidBytes(body) {
		return domain.Snapshot{}, &domain.SourceError{Reason: "malformed state document"}
	}

	doc := gjson.ParseBytes(body)
	members := doc.Get("members")
	if !members.Exists() {
		return domain.Snapshot{}, &domain.SourceError{Reason: "state document has no members field"}
	}

	snapshot := domain.Snapshot{
		MemberCount:        int(members.Int()),
		ActiveItemCount:    int(doc.Get("activeProposals").Int()),
		Treasury:           doc.Get("treasury").String(),
		GovernanceToken:    doc.Get("governanceToken").String(),
		ConsensusThreshold: doc.Get("consensusThreshold").String(),
		LastActivity:       s.clock.Now().UTC(),
	}

	if raw := doc.Get("lastActivity").String(); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return domain.Snapshot{}, &domain.SourceError{Reason: fmt.Sprintf("invalid lastActivity %q", raw)}
		}
		snapshot.LastActivity = parsed.UTC()
	}

	doc.Get("proposals").ForEach(func(_, item gjson.Result) bool {
		snapshot.Items = append(snapshot.Items, domain.Proposal{
			ID:           int(item.Get("id").Int()),
			Title:        item.Get("title").String(),
			Status:       item.Get("status").String(),
			ForVotes:     int(item.Get("forVotes").Int()),
			AgainstVotes: int(item.Get("againstVotes").Int()),
			Deadline:     item.Get("deadline").String(),
		})
		return true
	})

	return snapshot, nil
}
