package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JoinsSegmentsWithSpaces(t *testing.T) {
	tr := New("vid123", []Segment{
		{Text: "hello", Start: 0, Duration: 1},
		{Text: "world", Start: 1, Duration: 1.5},
		{Text: "again", Start: 2.5, Duration: 2},
	})

	assert.Equal(t, "vid123", tr.VideoID)
	assert.Equal(t, "hello world again", tr.FullText)
	require.Len(t, tr.Segments, 3)
}

func TestSegmentAt_MapsOffsetsToSegments(t *testing.T) {
	tr := New("vid123", []Segment{
		{Text: "hello", Start: 0, Duration: 1},  // オフセット 0..4
		{Text: "world", Start: 10, Duration: 1}, // オフセット 6..10
		{Text: "again", Start: 20, Duration: 1}, // オフセット 12..16
	})

	tests := []struct {
		offset    int
		wantStart float64
	}{
		{0, 0},
		{4, 0},
		{5, 0}, // 区切り空白は直前のセグメントに属する
		{6, 10},
		{11, 10},
		{12, 20},
		{16, 20},
		{9999, 20}, // 範囲外は最後のセグメント
	}

	for _, tt := range tests {
		assert.Equal(t, tt.wantStart, tr.SegmentAt(tt.offset).Start, "offset=%d", tt.offset)
	}
}

func TestSegmentAt_MultibyteOffsetsAreRuneBased(t *testing.T) {
	tr := New("vid123", []Segment{
		{Text: "こんにちは", Start: 0, Duration: 2},  // 5ルーン
		{Text: "世界のみなさん", Start: 2, Duration: 3}, // オフセット6から
	})

	assert.Equal(t, "こんにちは 世界のみなさん", tr.FullText)
	assert.Equal(t, 0.0, tr.SegmentAt(4).Start)
	assert.Equal(t, 2.0, tr.SegmentAt(6).Start)
}

func TestSegmentAt_EmptyTranscript(t *testing.T) {
	tr := New("vid123", nil)
	assert.Equal(t, Segment{}, tr.SegmentAt(0))
	assert.Equal(t, "", tr.FullText)
}
