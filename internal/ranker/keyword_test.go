package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordScore(t *testing.T) {
	tests := []struct {
		name   string
		resume string
		jd     string
		want   int
	}{
		{
			name:   "完全命中",
			resume: "golang kubernetes docker",
			jd:     "golang kubernetes docker",
			want:   100,
		},
		{
			name:   "部分命中",
			resume: "golang redis 工程师简历",
			jd:     "golang kubernetes redis postgres",
			want:   50,
		},
		{
			name:   "命中率四舍五入",
			resume: "golang kubernetes",
			jd:     "golang kubernetes terraform",
			want:   67,
		},
		{
			name:   "JD为空",
			resume: "golang kubernetes",
			jd:     "",
			want:   0,
		},
		{
			name:   "JD只有短词被全部过滤",
			resume: "golang kubernetes",
			jd:     "go js sql c++",
			want:   0,
		},
		{
			name:   "大小写不敏感",
			resume: "GoLang KUBERNETES",
			jd:     "golang kubernetes",
			want:   100,
		},
		{
			name:   "简历为空",
			resume: "",
			jd:     "golang kubernetes",
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KeywordScore(tt.resume, tt.jd)
			assert.Equal(t, tt.want, got, "关键词得分应与预期一致")
		})
	}
}

func TestKeywordScoreIsPure(t *testing.T) {
	resume := "golang kubernetes redis"
	jd := "golang kubernetes postgres"
	first := KeywordScore(resume, jd)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, KeywordScore(resume, jd), "相同输入必须得到相同结果")
	}
}
