// internal/tiktok/types.go
package tiktok

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// UserStats carries a profile's aggregate counters.
type UserStats struct {
	FollowerCount  int64 `json:"followerCount"`
	FollowingCount int64 `json:"followingCount"`
	HeartCount     int64 `json:"heartCount"`
	VideoCount     int64 `json:"videoCount"`
	DiggCount      int64 `json:"diggCount"`
}

// UserInfo is a fully hydrated profile. Raw preserves the source object
// for fields the typed surface does not model.
type UserInfo struct {
	ID             string `json:"id"`
	UniqueID       string `json:"uniqueId"`
	SecUID         string `json:"secUid"`
	Nickname       string `json:"nickname"`
	Signature      string `json:"signature"`
	Verified       bool   `json:"verified"`
	PrivateAccount bool   `json:"privateAccount"`

	Stats UserStats           `json:"stats"`
	Raw   jsoniter.RawMessage `json:"-"`
}

// AuthorRef identifies a video's author. Feed payloads carry either a
// full author object or just the username with counters split into a
// sibling field, so the decoder accepts both.
type AuthorRef struct {
	ID       string `json:"id"`
	UniqueID string `json:"uniqueId"`
	SecUID   string `json:"secUid"`
	Nickname string `json:"nickname"`
}

// UnmarshalJSON accepts both the object and bare-username encodings.
func (a *AuthorRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var username string
		if err := json.Unmarshal(data, &username); err != nil {
			return err
		}
		a.UniqueID = username
		return nil
	}
	type plain AuthorRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decoding author: %w", err)
	}
	*a = AuthorRef(p)
	return nil
}

// VideoStats carries a video's engagement counters.
type VideoStats struct {
	DiggCount    int64 `json:"diggCount"`
	ShareCount   int64 `json:"shareCount"`
	CommentCount int64 `json:"commentCount"`
	PlayCount    int64 `json:"playCount"`
	CollectCount int64 `json:"collectCount"`
}

// VideoInfo is one video as reported by feed and detail payloads.
type VideoInfo struct {
	ID         string     `json:"id"`
	Desc       string     `json:"desc"`
	CreateTime int64      `json:"createTime"`
	Author     AuthorRef  `json:"author"`
	Stats      VideoStats `json:"stats"`
	Duration   int64      `json:"-"`

	Raw jsoniter.RawMessage `json:"-"`
}

// URL returns the canonical watch address.
func (v VideoInfo) URL() string {
	username := v.Author.UniqueID
	if username == "" {
		username = "user"
	}
	return fmt.Sprintf("https://www.tiktok.com/@%s/video/%s", username, v.ID)
}

// CommentUser identifies a comment author. The comment API has shipped
// two key styles over time; both decode.
type CommentUser struct {
	UID      string `json:"uid"`
	ID       string `json:"id"`
	UniqueID string `json:"unique_id"`
	Nickname string `json:"nickname"`
}

// UnmarshalJSON normalizes the two historical encodings: snake_case
// with uid/unique_id, and camelCase with id/uniqueId.
func (u *CommentUser) UnmarshalJSON(data []byte) error {
	var m struct {
		UID       string `json:"uid"`
		ID        string `json:"id"`
		UniqueIDA string `json:"unique_id"`
		UniqueIDB string `json:"uniqueId"`
		Nickname  string `json:"nickname"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decoding comment user: %w", err)
	}
	u.UID = m.UID
	u.ID = m.ID
	u.Nickname = m.Nickname
	u.UniqueID = m.UniqueIDA
	if u.UniqueID == "" {
		u.UniqueID = m.UniqueIDB
	}
	if u.UID == "" {
		u.UID = m.ID
	}
	return nil
}

// AuthorID returns the best available author identifier.
func (u CommentUser) AuthorID() string {
	if u.UID != "" {
		return u.UID
	}
	return u.ID
}

// Comment is one comment, optionally with its reply thread attached.
type Comment struct {
	CID        string      `json:"cid"`
	Text       string      `json:"text"`
	CreateTime int64       `json:"create_time"`
	DiggCount  int64       `json:"digg_count"`
	AwemeID    string      `json:"aweme_id"`
	Language   string      `json:"comment_language"`
	User       CommentUser `json:"user"`

	ReplyTotal int64     `json:"reply_comment_total"`
	Replies    []Comment `json:"reply_comment"`

	Raw jsoniter.RawMessage `json:"-"`
}

// HashtagStats carries a tag's aggregate counters.
type HashtagStats struct {
	VideoCount int64 `json:"videoCount"`
	ViewCount  int64 `json:"viewCount"`
}

// HashtagInfo is a hydrated tag page.
type HashtagInfo struct {
	ID    string       `json:"id"`
	Title string       `json:"title"`
	Desc  string       `json:"desc"`
	Stats HashtagStats `json:"stats"`

	Raw jsoniter.RawMessage `json:"-"`
}

// SearchUser is one row of a user search result.
type SearchUser struct {
	Info struct {
		UID       string `json:"uid"`
		UniqueID  string `json:"unique_id"`
		Nickname  string `json:"nickname"`
		Signature string `json:"signature"`
		SecUID    string `json:"sec_uid"`
	} `json:"user_info"`

	Raw jsoniter.RawMessage `json:"-"`
}
