package parser

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEinoPDFTextExtractor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	extractor, err := NewEinoPDFTextExtractor(ctx, zerolog.Nop())
	require.NoError(t, err, "创建PDF提取器不应返回错误")
	require.NotNil(t, extractor)
	require.NotNil(t, extractor.parser)
	assert.Equal(t, 30*time.Second, extractor.timeout)

	extractor, err = NewEinoPDFTextExtractor(ctx, zerolog.Nop(), WithPDFTimeout(10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, extractor.timeout)
}

func TestExtractFromFile_NotExist(t *testing.T) {
	ctx := context.Background()
	extractor, err := NewEinoPDFTextExtractor(ctx, zerolog.Nop())
	require.NoError(t, err)

	_, err = extractor.ExtractFromFile(ctx, "testdata/不存在的文件.pdf")
	require.Error(t, err)
}

func TestExtractFromBytes_InvalidContent(t *testing.T) {
	ctx := context.Background()
	extractor, err := NewEinoPDFTextExtractor(ctx, zerolog.Nop())
	require.NoError(t, err)

	// 非PDF内容应返回解析错误而不是panic
	_, err = extractor.ExtractFromBytes(ctx, []byte("这不是一个PDF文件"), "bad.pdf")
	require.Error(t, err)
}

func TestExtractFromFile_RealPDF(t *testing.T) {
	const testPDF = "testdata/sample_resume.pdf"
	if _, err := os.Stat(testPDF); err != nil {
		t.Skipf("测试PDF文件不存在，跳过: %s", testPDF)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	extractor, err := NewEinoPDFTextExtractor(ctx, zerolog.Nop())
	require.NoError(t, err)

	text, err := extractor.ExtractFromFile(ctx, testPDF)
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}
