package transcript

import (
	"sort"
	"strings"
)

// Segment は字幕の1区間を表す
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Transcript は1本の動画の字幕全体を表す
// Fetcherが一度だけ生成し、以後は読み取り専用で扱う
type Transcript struct {
	VideoID  string
	Segments []Segment
	FullText string

	// offsets[i] は FullText 内で Segments[i] が始まるルーンオフセット
	offsets []int
}

// New はセグメント列から Transcript を構築する
// FullText はセグメントのテキストを半角スペースで連結したもの
func New(videoID string, segments []Segment) *Transcript {
	var sb strings.Builder
	offsets := make([]int, len(segments))

	pos := 0
	for i, seg := range segments {
		if i > 0 {
			sb.WriteString(" ")
			pos++
		}
		offsets[i] = pos
		sb.WriteString(seg.Text)
		pos += len([]rune(seg.Text))
	}

	return &Transcript{
		VideoID:  videoID,
		Segments: segments,
		FullText: sb.String(),
		offsets:  offsets,
	}
}

// SegmentAt は FullText 上のルーンオフセットに対応するセグメントを返す
// オフセットが範囲外の場合は最後のセグメントを返す
func (t *Transcript) SegmentAt(offset int) Segment {
	if len(t.Segments) == 0 {
		return Segment{}
	}

	// offsets は昇順なので二分探索で offset を含むセグメントを特定する
	i := sort.Search(len(t.offsets), func(i int) bool {
		return t.offsets[i] > offset
	})
	if i == 0 {
		return t.Segments[0]
	}
	return t.Segments[i-1]
}
