// internal/tiktok/extract.go
//
// Entity extraction from the two places data lives: JSON blobs embedded
// in the initial page render, and raw bodies of feed API responses. The
// site has shipped three blob generations; extraction probes newest to
// oldest and only reports a format error when no generation matches.
package tiktok

import (
	"regexp"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/networkdynamics/gotok/internal/scrape"
)

var (
	universalDataRe = regexp.MustCompile(`<script id="__UNIVERSAL_DATA_FOR_REHYDRATION__" type="application/json">([^<]+)</script>`)
	nextDataRe      = regexp.MustCompile(`<script id="__NEXT_DATA__" type="application/json"[^>]*>([^<]+)</script>`)
	sigiStateRe     = regexp.MustCompile(`<script id="SIGI_STATE" type="application/json">(.*?)</script>`)
)

// extractPageBlob pulls the embedded state JSON out of a rendered page.
func extractPageBlob(html string) ([]byte, error) {
	for _, re := range []*regexp.Regexp{universalDataRe, nextDataRe, sigiStateRe} {
		if m := re.FindStringSubmatch(html); m != nil {
			return []byte(m[1]), nil
		}
	}
	return nil, scrape.NotAvailablef("page carried no embedded state blob")
}

// flexInt decodes JSON numbers that arrive as either numerals or quoted
// strings. Feed cursors have shipped both ways.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// userDetailEnvelope is shared by the embedded webapp.user-detail scope
// and the api/user/detail response.
type userDetailEnvelope struct {
	StatusCode int `json:"statusCode"`
	UserInfo   struct {
		User  jsoniter.RawMessage `json:"user"`
		Stats UserStats           `json:"stats"`
	} `json:"userInfo"`
}

func (e *userDetailEnvelope) toUser() (*UserInfo, error) {
	var user UserInfo
	if err := json.Unmarshal(e.UserInfo.User, &user); err != nil {
		return nil, scrape.InvalidFormatf("decoding user object: %v", err)
	}
	user.Stats = e.UserInfo.Stats
	user.Raw = e.UserInfo.User
	return &user, nil
}

// parseUserBlob hydrates a profile from the page blob. username selects
// the entry in the legacy per-user map generation.
func parseUserBlob(blob []byte, username string) (*UserInfo, error) {
	// Current generation: __DEFAULT_SCOPE__ / webapp.user-detail.
	var universal struct {
		DefaultScope struct {
			UserDetail *userDetailEnvelope `json:"webapp.user-detail"`
		} `json:"__DEFAULT_SCOPE__"`
		// Legacy generation: per-user maps keyed by username.
		UserModule *struct {
			Users map[string]jsoniter.RawMessage `json:"users"`
			Stats map[string]UserStats           `json:"stats"`
		} `json:"UserModule"`
	}
	if err := json.Unmarshal(blob, &universal); err != nil {
		return nil, scrape.InvalidFormatf("undecodable page blob: %v", err)
	}

	if d := universal.DefaultScope.UserDetail; d != nil {
		if d.StatusCode != 0 {
			return nil, scrape.NotAvailablef("profile status code %d", d.StatusCode)
		}
		return d.toUser()
	}

	if um := universal.UserModule; um != nil {
		raw, ok := um.Users[username]
		if !ok {
			return nil, scrape.NotAvailablef("profile %q absent from page state", username)
		}
		var user UserInfo
		if err := json.Unmarshal(raw, &user); err != nil {
			return nil, scrape.InvalidFormatf("decoding legacy user object: %v", err)
		}
		user.Stats = um.Stats[username]
		user.Raw = raw
		return &user, nil
	}

	return nil, scrape.InvalidFormatf("page blob matched no known profile shape")
}

// parseUserDetailBody hydrates a profile from an api/user/detail
// response body.
func parseUserDetailBody(body []byte) (*UserInfo, error) {
	var env userDetailEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, scrape.InvalidFormatf("undecodable user detail: %v", err)
	}
	if env.StatusCode != 0 {
		return nil, scrape.NotAvailablef("profile status code %d", env.StatusCode)
	}
	if len(env.UserInfo.User) == 0 {
		return nil, scrape.InvalidFormatf("user detail carried no user object")
	}
	return env.toUser()
}

// parseVideoBlob hydrates a video from the page blob. id selects the
// entry in the legacy item map generation.
func parseVideoBlob(blob []byte, id string) (*VideoInfo, error) {
	var universal struct {
		DefaultScope struct {
			VideoDetail *struct {
				StatusCode int `json:"statusCode"`
				ItemInfo   struct {
					ItemStruct jsoniter.RawMessage `json:"itemStruct"`
				} `json:"itemInfo"`
			} `json:"webapp.video-detail"`
		} `json:"__DEFAULT_SCOPE__"`
		ItemModule map[string]jsoniter.RawMessage `json:"ItemModule"`
	}
	if err := json.Unmarshal(blob, &universal); err != nil {
		return nil, scrape.InvalidFormatf("undecodable page blob: %v", err)
	}

	var raw jsoniter.RawMessage
	switch {
	case universal.DefaultScope.VideoDetail != nil:
		d := universal.DefaultScope.VideoDetail
		if d.StatusCode != 0 {
			return nil, scrape.NotAvailablef("video status code %d", d.StatusCode)
		}
		raw = d.ItemInfo.ItemStruct
	case universal.ItemModule != nil:
		var ok bool
		raw, ok = universal.ItemModule[id]
		if !ok {
			return nil, scrape.NotAvailablef("video %q absent from page state", id)
		}
	default:
		return nil, scrape.InvalidFormatf("page blob matched no known video shape")
	}

	var video VideoInfo
	if err := json.Unmarshal(raw, &video); err != nil {
		return nil, scrape.InvalidFormatf("decoding video object: %v", err)
	}
	video.Raw = raw
	return &video, nil
}

// parseChallengeBody hydrates a tag from an api/challenge/detail body.
func parseChallengeBody(body []byte) (*HashtagInfo, error) {
	var env struct {
		ChallengeInfo *struct {
			Challenge jsoniter.RawMessage `json:"challenge"`
			Stats     HashtagStats        `json:"stats"`
		} `json:"challengeInfo"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, scrape.InvalidFormatf("undecodable challenge detail: %v", err)
	}
	if env.ChallengeInfo == nil {
		return nil, scrape.APIFailedf("challenge detail carried no challengeInfo")
	}

	var tag HashtagInfo
	if err := json.Unmarshal(env.ChallengeInfo.Challenge, &tag); err != nil {
		return nil, scrape.InvalidFormatf("decoding challenge object: %v", err)
	}
	tag.Stats = env.ChallengeInfo.Stats
	tag.Raw = env.ChallengeInfo.Challenge
	return &tag, nil
}

// parseItemListBody parses one feed response (post, challenge, related,
// favorite item lists all share this shape).
func parseItemListBody(body []byte) (scrape.Page[VideoInfo], error) {
	var env struct {
		ItemList []jsoniter.RawMessage `json:"itemList"`
		Cursor   flexInt               `json:"cursor"`
		HasMore  bool                  `json:"hasMore"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return scrape.Page[VideoInfo]{}, scrape.InvalidFormatf("undecodable item list: %v", err)
	}

	page := scrape.Page[VideoInfo]{
		Cursor:  strconv.FormatInt(int64(env.Cursor), 10),
		HasMore: env.HasMore,
	}
	for _, raw := range env.ItemList {
		var video VideoInfo
		if err := json.Unmarshal(raw, &video); err != nil {
			return scrape.Page[VideoInfo]{}, scrape.InvalidFormatf("decoding feed item: %v", err)
		}
		video.Raw = raw
		page.Items = append(page.Items, video)
	}
	return page, nil
}

// parseCommentListBody parses one comment page. The comment API signals
// continuation with an integer has_more.
func parseCommentListBody(body []byte) (scrape.Page[Comment], error) {
	var env struct {
		Comments []jsoniter.RawMessage `json:"comments"`
		Cursor   flexInt               `json:"cursor"`
		HasMore  int                   `json:"has_more"`
		Total    int64                 `json:"total"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return scrape.Page[Comment]{}, scrape.InvalidFormatf("undecodable comment list: %v", err)
	}

	page := scrape.Page[Comment]{
		Cursor:  strconv.FormatInt(int64(env.Cursor), 10),
		HasMore: env.HasMore == 1,
	}
	for _, raw := range env.Comments {
		var comment Comment
		if err := json.Unmarshal(raw, &comment); err != nil {
			return scrape.Page[Comment]{}, scrape.InvalidFormatf("decoding comment: %v", err)
		}
		comment.Raw = raw
		page.Items = append(page.Items, comment)
	}
	return page, nil
}

// parseUserListBody parses one user search page.
func parseUserListBody(body []byte) (scrape.Page[SearchUser], error) {
	var env struct {
		UserList []jsoniter.RawMessage `json:"user_list"`
		Cursor   flexInt               `json:"cursor"`
		HasMore  int                   `json:"has_more"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return scrape.Page[SearchUser]{}, scrape.InvalidFormatf("undecodable user list: %v", err)
	}

	page := scrape.Page[SearchUser]{
		Cursor:  strconv.FormatInt(int64(env.Cursor), 10),
		HasMore: env.HasMore == 1,
	}
	for _, raw := range env.UserList {
		var user SearchUser
		if err := json.Unmarshal(raw, &user); err != nil {
			return scrape.Page[SearchUser]{}, scrape.InvalidFormatf("decoding search result: %v", err)
		}
		user.Raw = raw
		page.Items = append(page.Items, user)
	}
	return page, nil
}
