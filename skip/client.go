package skip

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/avast/retry-go/v4"
	"github.com/tubeflow-cli/tubeflow/log"
	"github.com/tubeflow-cli/tubeflow/network"
)

// ErrFetch reports a failure to reach or decode the skip-segment service. Callers
// treat it as "no segments": the skip feature degrades silently rather than
// blocking playback.
var ErrFetch = errors.New("skip segment fetch failed")

// hashPrefixLength is the number of hex characters of the video id hash sent to the
// service. The service returns every video sharing the prefix, so the exact id never
// leaves the client.
const hashPrefixLength = 4

// fetchAttempts bounds the transient-error retries before degrading to no segments.
const fetchAttempts = 3

// Client queries a skip-segment service.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the service at baseURL. A nil httpClient falls
// back to the shared application client.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = network.Client
	}
	return &Client{base: baseURL, http: httpClient}
}

// apiRecord mirrors one entry of the service's hash-prefix response.
type apiRecord struct {
	VideoID  string `json:"videoID"`
	Segments []struct {
		Category      string     `json:"category"`
		Segment       [2]float64 `json:"segment"`
		UUID          string     `json:"UUID"`
		VideoDuration float64    `json:"videoDuration"`
	} `json:"segments"`
}

// FetchSegments retrieves the skip segments for a video, restricted to the given
// categories. The response covers every video sharing the id's hash prefix; records
// are filtered back down to the exact id locally and flattened into a single list
// sorted ascending by start time. A 404 from the service means "zero segments",
// not an error.
func (c *Client) FetchSegments(ctx context.Context, videoID string, categories []string) ([]Segment, error) {
	if len(categories) == 0 {
		return nil, nil
	}

	hash := sha256.Sum256([]byte(videoID))
	prefix := hex.EncodeToString(hash[:])[:hashPrefixLength]

	categoriesJSON, err := json.Marshal(categories)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	endpoint := fmt.Sprintf("%s/api/skipSegments/%s?categories=%s", c.base, prefix, string(categoriesJSON))

	var records []apiRecord
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}

			resp, err := c.http.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusNotFound:
				// No segments known for this prefix.
				records = nil
				return nil
			case resp.StatusCode >= 500:
				return fmt.Errorf("service returned %d", resp.StatusCode)
			case resp.StatusCode != http.StatusOK:
				return retry.Unrecoverable(fmt.Errorf("service returned %d", resp.StatusCode))
			}

			return json.NewDecoder(resp.Body).Decode(&records)
		},
		retry.Context(ctx),
		retry.Attempts(fetchAttempts),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	var segments []Segment
	for _, record := range records {
		if record.VideoID != videoID {
			continue
		}
		for _, s := range record.Segments {
			segments = append(segments, Segment{
				UUID:          s.UUID,
				Category:      s.Category,
				StartTime:     s.Segment[0],
				EndTime:       s.Segment[1],
				VideoDuration: s.VideoDuration,
			})
		}
	}

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].StartTime < segments[j].StartTime
	})

	log.Debugf("fetched %d skip segments for video %s", len(segments), videoID)
	return segments, nil
}

// FetchSegmentsCached consults the on-disk cache before querying the service, and
// stores fresh results back. The segment list for a session is thereby fetched at
// most once per category set.
func (c *Client) FetchSegmentsCached(ctx context.Context, videoID string, categories []string) ([]Segment, error) {
	if segments, ok := cachedSegments(videoID, categories); ok {
		return segments, nil
	}

	segments, err := c.FetchSegments(ctx, videoID, categories)
	if err != nil {
		return nil, err
	}

	storeSegments(videoID, categories, segments)
	return segments, nil
}
