package reddit

import (
	"time"
	"unicode/utf8"
)

// kindPost is the upstream listing kind for link posts. Comments ("t1") and
// other kinds are excluded from normalized results.
const kindPost = "t3"

// selfTextLimit caps the preview text carried on a normalized post.
const selfTextLimit = 200

// Post is the normalized shape of an upstream link post. Optional fields
// are pointers so absent values serialize as explicit JSON null rather
// than being omitted.
type Post struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Subreddit    string  `json:"subreddit"`
	Author       string  `json:"author"`
	Score        int     `json:"score"`
	UpvoteRatio  float64 `json:"upvote_ratio"`
	CommentCount int     `json:"comment_count"`
	URL          string  `json:"url"`
	CreatedAt    string  `json:"created_at"`
	Thumbnail    *string `json:"thumbnail"`
	IsVideo      bool    `json:"is_video"`
	SelfText     *string `json:"self_text"`
	Domain       string  `json:"domain"`
	Gilded       int     `json:"gilded"`
	Over18       bool    `json:"over_18"`
}

// listingChild is one item of an upstream listing response.
type listingChild struct {
	Kind string  `json:"kind"`
	Data rawPost `json:"data"`
}

// rawPost mirrors the upstream post fields we consume.
type rawPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Subreddit   string  `json:"subreddit"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	UpvoteRatio float64 `json:"upvote_ratio"`
	NumComments int     `json:"num_comments"`
	Permalink   string  `json:"permalink"`
	CreatedUTC  float64 `json:"created_utc"`
	Thumbnail   string  `json:"thumbnail"`
	IsVideo     bool    `json:"is_video"`
	SelfText    string  `json:"selftext"`
	Domain      string  `json:"domain"`
	Gilded      int     `json:"gilded"`
	Over18      bool    `json:"over_18"`
}

// formatPosts normalizes upstream listing children into Posts. Only link
// posts survive; every output field is populated, with explicit nil for
// absent optional values.
func formatPosts(children []listingChild) []Post {
	posts := make([]Post, 0, len(children))
	for _, child := range children {
		if child.Kind != kindPost {
			continue
		}
		posts = append(posts, formatPost(child.Data))
	}
	return posts
}

func formatPost(raw rawPost) Post {
	created := time.Unix(int64(raw.CreatedUTC), 0).UTC().Format(time.RFC3339)

	return Post{
		ID:           raw.ID,
		Title:        raw.Title,
		Subreddit:    raw.Subreddit,
		Author:       raw.Author,
		Score:        raw.Score,
		UpvoteRatio:  raw.UpvoteRatio,
		CommentCount: raw.NumComments,
		URL:          "https://reddit.com" + raw.Permalink,
		CreatedAt:    created,
		Thumbnail:    normalizeThumbnail(raw.Thumbnail),
		IsVideo:      raw.IsVideo,
		SelfText:     truncateSelfText(raw.SelfText),
		Domain:       raw.Domain,
		Gilded:       raw.Gilded,
		Over18:       raw.Over18,
	}
}

// normalizeThumbnail maps the upstream placeholder sentinels and the absent
// case to nil; any other value passes through unchanged.
func normalizeThumbnail(thumbnail string) *string {
	switch thumbnail {
	case "", "self", "default":
		return nil
	}
	return &thumbnail
}

// truncateSelfText caps the preview text, backing off to a rune boundary
// so the cut never produces invalid UTF-8.
func truncateSelfText(text string) *string {
	if text == "" {
		return nil
	}
	if len(text) > selfTextLimit {
		cut := selfTextLimit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return &text
}
