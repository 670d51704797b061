package tiktok

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networkdynamics/gotok/internal/scrape"
)

// Test Helpers and Fixtures

func pageWithBlob(scriptID, blob string) string {
	return fmt.Sprintf(`<html><head></head><body>
<div id="app">content</div>
<script id="%s" type="application/json">%s</script>
</body></html>`, scriptID, blob)
}

const userDetailJSON = `{
  "statusCode": 0,
  "userInfo": {
    "user": {
      "id": "107955",
      "uniqueId": "therock",
      "secUid": "MS4wLjABAAAA",
      "nickname": "The Rock",
      "signature": "CEO of Rhinestone Jumpsuits",
      "verified": true,
      "privateAccount": false
    },
    "stats": {
      "followerCount": 71500000,
      "followingCount": 285,
      "heartCount": 491000000,
      "videoCount": 110
    }
  }
}`

// Test Cases: page blob extraction

func TestExtractPageBlob_ProbesGenerationsNewestFirst(t *testing.T) {
	tests := []struct {
		name     string
		scriptID string
	}{
		{"universal data", "__UNIVERSAL_DATA_FOR_REHYDRATION__"},
		{"next data", "__NEXT_DATA__"},
		{"sigi state", "SIGI_STATE"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			blob, err := extractPageBlob(pageWithBlob(tc.scriptID, `{"a":1}`))
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":1}`, string(blob))
		})
	}
}

func TestExtractPageBlob_MissingBlobIsNotAvailable(t *testing.T) {
	_, err := extractPageBlob(`<html><body>Please wait...</body></html>`)
	assert.ErrorIs(t, err, scrape.ErrNotAvailable)
}

// Test Cases: profile parsing

func TestParseUserBlob_CurrentGeneration(t *testing.T) {
	blob := fmt.Sprintf(`{"__DEFAULT_SCOPE__":{"webapp.user-detail":%s}}`, userDetailJSON)

	user, err := parseUserBlob([]byte(blob), "therock")
	require.NoError(t, err)

	assert.Equal(t, "107955", user.ID)
	assert.Equal(t, "therock", user.UniqueID)
	assert.Equal(t, "The Rock", user.Nickname)
	assert.True(t, user.Verified)
	assert.EqualValues(t, 110, user.Stats.VideoCount)
	assert.EqualValues(t, 71500000, user.Stats.FollowerCount)
	assert.NotEmpty(t, user.Raw, "the source object must be preserved")
}

func TestParseUserBlob_LegacyUserModule(t *testing.T) {
	blob := `{
	  "UserModule": {
	    "users": {"therock": {"id": "107955", "uniqueId": "therock", "nickname": "The Rock"}},
	    "stats": {"therock": {"followerCount": 100, "videoCount": 7}}
	  }
	}`

	user, err := parseUserBlob([]byte(blob), "therock")
	require.NoError(t, err)
	assert.Equal(t, "107955", user.ID)
	assert.EqualValues(t, 7, user.Stats.VideoCount)
}

func TestParseUserBlob_NonZeroStatusIsNotAvailable(t *testing.T) {
	blob := `{"__DEFAULT_SCOPE__":{"webapp.user-detail":{"statusCode":10202,"userInfo":{}}}}`
	_, err := parseUserBlob([]byte(blob), "ghost")
	assert.ErrorIs(t, err, scrape.ErrNotAvailable)
}

func TestParseUserBlob_UnknownShapeIsInvalidFormat(t *testing.T) {
	_, err := parseUserBlob([]byte(`{"SomethingElse":{}}`), "x")
	assert.ErrorIs(t, err, scrape.ErrInvalidFormat)
}

func TestParseUserDetailBody(t *testing.T) {
	user, err := parseUserDetailBody([]byte(userDetailJSON))
	require.NoError(t, err)
	assert.Equal(t, "therock", user.UniqueID)

	_, err = parseUserDetailBody([]byte(`{"statusCode":10221}`))
	assert.ErrorIs(t, err, scrape.ErrNotAvailable)

	_, err = parseUserDetailBody([]byte(`{"statusCode":0,"userInfo":{}}`))
	assert.ErrorIs(t, err, scrape.ErrInvalidFormat)
}

// Test Cases: video parsing

func TestParseVideoBlob_CurrentGeneration(t *testing.T) {
	blob := `{
	  "__DEFAULT_SCOPE__": {
	    "webapp.video-detail": {
	      "statusCode": 0,
	      "itemInfo": {
	        "itemStruct": {
	          "id": "7107272719166901550",
	          "desc": "test clip",
	          "createTime": 1654724706,
	          "author": {"id": "107955", "uniqueId": "therock"},
	          "stats": {"diggCount": 5, "playCount": 100}
	        }
	      }
	    }
	  }
	}`

	video, err := parseVideoBlob([]byte(blob), "7107272719166901550")
	require.NoError(t, err)
	assert.Equal(t, "7107272719166901550", video.ID)
	assert.Equal(t, "therock", video.Author.UniqueID)
	assert.EqualValues(t, 100, video.Stats.PlayCount)
	assert.Equal(t, "https://www.tiktok.com/@therock/video/7107272719166901550", video.URL())
}

func TestParseVideoBlob_LegacyItemModule(t *testing.T) {
	blob := `{"ItemModule":{"123":{"id":"123","desc":"old","author":"therock"}}}`

	video, err := parseVideoBlob([]byte(blob), "123")
	require.NoError(t, err)
	assert.Equal(t, "old", video.Desc)
	assert.Equal(t, "therock", video.Author.UniqueID, "legacy items carry the author as a bare username")
}

func TestParseVideoBlob_RemovedVideo(t *testing.T) {
	blob := `{"__DEFAULT_SCOPE__":{"webapp.video-detail":{"statusCode":10204}}}`
	_, err := parseVideoBlob([]byte(blob), "123")
	assert.ErrorIs(t, err, scrape.ErrNotAvailable)
}

// Test Cases: feed bodies

func TestParseItemListBody(t *testing.T) {
	body := `{
	  "itemList": [
	    {"id": "1", "desc": "one", "author": {"uniqueId": "a"}},
	    {"id": "2", "desc": "two", "author": {"uniqueId": "b"}}
	  ],
	  "cursor": "1712000000000",
	  "hasMore": true
	}`

	page, err := parseItemListBody([]byte(body))
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "1", page.Items[0].ID)
	assert.Equal(t, "1712000000000", page.Cursor, "quoted cursors normalize to their numeral")
	assert.True(t, page.HasMore)
}

func TestParseItemListBody_BareNumberCursor(t *testing.T) {
	page, err := parseItemListBody([]byte(`{"itemList":[],"cursor":35,"hasMore":false}`))
	require.NoError(t, err)
	assert.Equal(t, "35", page.Cursor)
	assert.False(t, page.HasMore)
}

func TestParseCommentListBody(t *testing.T) {
	body := `{
	  "comments": [
	    {
	      "cid": "900", "text": "first", "aweme_id": "123",
	      "digg_count": 4, "reply_comment_total": 2,
	      "user": {"uid": "55", "unique_id": "fan1", "nickname": "Fan"}
	    }
	  ],
	  "cursor": 20,
	  "has_more": 1,
	  "total": 3100
	}`

	page, err := parseCommentListBody([]byte(body))
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	c := page.Items[0]
	assert.Equal(t, "900", c.CID)
	assert.Equal(t, "123", c.AwemeID)
	assert.EqualValues(t, 2, c.ReplyTotal)
	assert.Equal(t, "55", c.User.UID)
	assert.Equal(t, "fan1", c.User.UniqueID)
	assert.True(t, page.HasMore, "integer has_more of 1 means more pages")
	assert.Equal(t, "20", page.Cursor)
}

func TestParseCommentListBody_CamelCaseUser(t *testing.T) {
	body := `{
	  "comments": [{"cid": "901", "user": {"id": "77", "uniqueId": "fan2"}}],
	  "cursor": "40",
	  "has_more": 0
	}`

	page, err := parseCommentListBody([]byte(body))
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	c := page.Items[0]
	assert.Equal(t, "77", c.User.AuthorID())
	assert.Equal(t, "fan2", c.User.UniqueID)
	assert.False(t, page.HasMore)
}

func TestParseUserListBody(t *testing.T) {
	body := `{
	  "user_list": [
	    {"user_info": {"uid": "1", "unique_id": "alpha", "nickname": "Alpha"}},
	    {"user_info": {"uid": "2", "unique_id": "beta"}}
	  ],
	  "cursor": 10,
	  "has_more": 1
	}`

	page, err := parseUserListBody([]byte(body))
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "alpha", page.Items[0].Info.UniqueID)
	assert.True(t, page.HasMore)
}

func TestParseChallengeBody(t *testing.T) {
	body := `{
	  "challengeInfo": {
	    "challenge": {"id": "99", "title": "fyp", "desc": ""},
	    "stats": {"videoCount": 1000, "viewCount": 50000}
	  }
	}`

	tag, err := parseChallengeBody([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "fyp", tag.Title)
	assert.EqualValues(t, 1000, tag.Stats.VideoCount)

	_, err = parseChallengeBody([]byte(`{"statusCode":0}`))
	assert.ErrorIs(t, err, scrape.ErrAPIFailed)
}

// Test Cases: flexible scalar decoding

func TestFlexInt(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{`123`, 123},
		{`"456"`, 456},
		{`""`, 0},
		{`null`, 0},
	}

	for _, tc := range tests {
		var f flexInt
		require.NoError(t, f.UnmarshalJSON([]byte(tc.in)), tc.in)
		assert.EqualValues(t, tc.want, f, tc.in)
	}

	var f flexInt
	assert.Error(t, f.UnmarshalJSON([]byte(`"not a number"`)))
}
