package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"ats-rank-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// stageOnePayload 第一阶段输出结构
type stageOnePayload struct {
	RequiredSkills []string `json:"required_skills"`
}

// stageTwoPayload 第二阶段输出结构
type stageTwoPayload struct {
	LLMScore      int      `json:"llm_score"`
	MatchedSkills []string `json:"matched_skills"`
	MissingSkills []string `json:"missing_skills"`
}

// TwoStageSkillExtractor 两阶段技能抽取器
// 第一阶段只看 JD 抽取技能清单，第二阶段对照简历逐项判定，
// 第二阶段输出经过对账后才可信：清单之外的技能一律丢弃
type TwoStageSkillExtractor struct {
	llmModel      model.ToolCallingChatModel
	extractPrompt string // 第一阶段：JD 技能清单抽取模板
	matchPrompt   string // 第二阶段：逐项判定模板
	logger        zerolog.Logger
}

// SkillExtractorOption 技能抽取器配置选项
type SkillExtractorOption func(*TwoStageSkillExtractor)

// WithExtractPrompt 设置自定义第一阶段模板
func WithExtractPrompt(template string) SkillExtractorOption {
	return func(e *TwoStageSkillExtractor) {
		e.extractPrompt = template
	}
}

// WithMatchPrompt 设置自定义第二阶段模板
func WithMatchPrompt(template string) SkillExtractorOption {
	return func(e *TwoStageSkillExtractor) {
		e.matchPrompt = template
	}
}

// NewTwoStageSkillExtractor 创建技能抽取器实例
func NewTwoStageSkillExtractor(llmModel model.ToolCallingChatModel, logger zerolog.Logger, options ...SkillExtractorOption) *TwoStageSkillExtractor {
	extractor := &TwoStageSkillExtractor{
		llmModel: llmModel,
		logger:   logger.With().Str("component", "TwoStageSkillExtractor").Logger(),
	}

	extractor.generatePromptTemplates()

	for _, opt := range options {
		opt(extractor)
	}

	return extractor
}

func (e *TwoStageSkillExtractor) generatePromptTemplates() {
	e.extractPrompt = `你是一位严谨的技术招聘专家。请从下面的【岗位描述】中抽取该岗位要求的技术技能清单。

**抽取规则（必须严格遵守）：**
1. 只抽取【岗位描述】中明确出现的具体技术、工具、框架或平台。
2. 禁止补充你认为"相关"但原文没有出现的技能。
3. 命名要具体，例如写 "Azure" 而不是 "云计算"，写 "Spring Boot" 而不是 "Java生态"。
4. 忽略沟通能力、团队协作等软技能。

**输出格式：**
只输出一个合法的JSON对象，禁止任何其他文本或Markdown标记：
{"required_skills": ["技能1", "技能2"]}

【岗位描述】:
"""
%s
"""`

	e.matchPrompt = `你是一位严谨的技术招聘专家。下面给出一个岗位的【必备技能清单】和一份【候选人简历】，请逐项判定每个技能在简历中是否有证据。

**判定规则（必须严格遵守）：**
1. matched_skills 和 missing_skills 中的技能只能来自【必备技能清单】，禁止出现清单之外的任何技能。
2. 清单中的每个技能必须且只能出现在两个列表之一，禁止同时出现。
3. 允许常见同义写法视为匹配，例如 "Postgres" 与 "PostgreSQL"、"K8s" 与 "Kubernetes"。
4. "llm_score" 为 0-100 的整数，反映候选人对清单技能的整体覆盖质量。

**输出格式：**
只输出一个合法的JSON对象，所有字段名和字符串值使用双引号，禁止任何其他文本：
{"llm_score": 80, "matched_skills": ["技能1"], "missing_skills": ["技能2"]}

【必备技能清单】:
%s

【候选人简历】:
"""
%s
"""`
}

// ExtractAndMatch 执行完整的两阶段抽取与对账
// 任何阶段失败都不会向外抛错，而是返回降级的全零结果并在日志中区分降级与清单为空两种情况
func (e *TwoStageSkillExtractor) ExtractAndMatch(ctx context.Context, jobDescription string, resumeText string) *types.SkillMatch {
	required, err := e.extractRequiredSkills(ctx, jobDescription)
	if err != nil {
		e.logger.Warn().Err(err).Msg("第一阶段技能抽取失败，结果降级为全零")
		return degradedSkillMatch()
	}

	// 清单为空是合法结果，与降级分开记录
	if len(required) == 0 {
		e.logger.Info().Msg("JD中未抽取到任何必备技能，跳过第二阶段")
		return &types.SkillMatch{
			RequiredSkills: []string{},
			MatchedSkills:  []string{},
			MissingSkills:  []string{},
			Status:         types.SkillMatchNoRequirements,
		}
	}

	raw, err := e.matchSkills(ctx, required, resumeText)
	if err != nil {
		e.logger.Warn().Err(err).Strs("required_skills", required).Msg("第二阶段技能判定失败，结果降级为全零")
		return degradedSkillMatch()
	}

	return reconcileSkillMatch(required, raw)
}

// extractRequiredSkills 第一阶段：仅依据 JD 抽取技能清单
func (e *TwoStageSkillExtractor) extractRequiredSkills(ctx context.Context, jobDescription string) ([]string, error) {
	if e.llmModel == nil {
		return nil, fmt.Errorf("llmModel未初始化")
	}

	messages := []*einoschema.Message{
		einoschema.SystemMessage("你是一位只输出JSON的技术技能抽取助手。"),
		einoschema.UserMessage(fmt.Sprintf(e.extractPrompt, jobDescription)),
	}

	response, err := e.llmModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("第一阶段LLM调用失败: %w", err)
	}
	if response == nil || response.Content == "" {
		return nil, fmt.Errorf("第一阶段LLM返回空响应")
	}

	var payload stageOnePayload
	if err := unmarshalModelJSON(response.Content, &payload); err != nil {
		return nil, fmt.Errorf("第一阶段输出解析失败: %w", err)
	}

	// 去重并丢弃空白项
	seen := make(map[string]struct{})
	skills := make([]string, 0, len(payload.RequiredSkills))
	for _, s := range payload.RequiredSkills {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		skills = append(skills, s)
	}
	return skills, nil
}

// matchSkills 第二阶段：对照简历判定清单中的每个技能
// JSON解析彻底失败时尝试用正则从原文中抢救一个裸百分比分数
func (e *TwoStageSkillExtractor) matchSkills(ctx context.Context, required []string, resumeText string) (*stageTwoPayload, error) {
	skillList := "- " + strings.Join(required, "\n- ")
	messages := []*einoschema.Message{
		einoschema.SystemMessage("你是一位只输出JSON的技能匹配判定助手。"),
		einoschema.UserMessage(fmt.Sprintf(e.matchPrompt, skillList, resumeText)),
	}

	response, err := e.llmModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("第二阶段LLM调用失败: %w", err)
	}
	if response == nil || response.Content == "" {
		return nil, fmt.Errorf("第二阶段LLM返回空响应")
	}

	var payload stageTwoPayload
	if err := unmarshalModelJSON(response.Content, &payload); err != nil {
		if score, ok := salvageBareScore(response.Content); ok {
			e.logger.Warn().
				Int("salvaged_score", score).
				Msg("第二阶段输出不可解析，已从原文抢救裸分数，技能列表按空处理")
			return &stageTwoPayload{LLMScore: score}, nil
		}
		return nil, fmt.Errorf("第二阶段输出解析失败: %w", err)
	}
	return &payload, nil
}

// reconcileSkillMatch 对账第二阶段输出，任何不在清单内的技能一律丢弃，
// 同时出现在两个列表中的技能以 matched 为准，关键词得分按对账后列表重新计算
func reconcileSkillMatch(required []string, raw *stageTwoPayload) *types.SkillMatch {
	allowed := make(map[string]string, len(required)) // 规范化形式 -> 清单原始写法
	for _, s := range required {
		allowed[normalizeSkill(s)] = s
	}

	matched := make([]string, 0, len(raw.MatchedSkills))
	matchedSet := make(map[string]struct{})
	for _, s := range raw.MatchedSkills {
		key := normalizeSkill(s)
		canonical, ok := allowed[key]
		if !ok {
			continue
		}
		if _, dup := matchedSet[key]; dup {
			continue
		}
		matchedSet[key] = struct{}{}
		matched = append(matched, canonical)
	}

	missing := make([]string, 0, len(raw.MissingSkills))
	missingSet := make(map[string]struct{})
	for _, s := range raw.MissingSkills {
		key := normalizeSkill(s)
		canonical, ok := allowed[key]
		if !ok {
			continue
		}
		if _, isMatched := matchedSet[key]; isMatched {
			continue
		}
		if _, dup := missingSet[key]; dup {
			continue
		}
		missingSet[key] = struct{}{}
		missing = append(missing, canonical)
	}

	keywordScore := 0
	if total := len(matched) + len(missing); total > 0 {
		keywordScore = int(math.Round(float64(len(matched)) / float64(total) * 100))
	}

	llmScore := raw.LLMScore
	if llmScore < 0 {
		llmScore = 0
	}
	if llmScore > 100 {
		llmScore = 100
	}

	return &types.SkillMatch{
		RequiredSkills: required,
		MatchedSkills:  matched,
		MissingSkills:  missing,
		LLMScore:       llmScore,
		KeywordScore:   keywordScore,
		Status:         types.SkillMatchOK,
	}
}

// normalizeSkill 技能比较用的规范化形式
func normalizeSkill(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func degradedSkillMatch() *types.SkillMatch {
	return &types.SkillMatch{
		RequiredSkills: []string{},
		MatchedSkills:  []string{},
		MissingSkills:  []string{},
		Status:         types.SkillMatchDegraded,
	}
}

// unmarshalModelJSON 从模型输出中提取并反序列化JSON
// 依次尝试：剥离BOM -> 括号层级提取 -> 直接解析 -> 引号修复后重试
func unmarshalModelJSON(content string, out interface{}) error {
	processed := strings.TrimPrefix(content, "\uFEFF")

	jsonStr := extractJSONByBraces(processed)
	if jsonStr == "" {
		return fmt.Errorf("响应中找不到JSON对象: %.200s", processed)
	}
	if !utf8.ValidString(jsonStr) {
		jsonStr = strings.ToValidUTF8(jsonStr, "")
	}

	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		fixed := repairJSONQuotes(jsonStr)
		if jsonErr := json.Unmarshal([]byte(fixed), out); jsonErr != nil {
			return fmt.Errorf("JSON反序列化失败（修复后仍失败: %v）: %w", jsonErr, err)
		}
	}
	return nil
}

// extractJSONByBraces 按大括号层级从文本中提取第一个完整的JSON对象
func extractJSONByBraces(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	for i := start; i < len(text); i++ {
		if text[i] == '{' {
			level++
		} else if text[i] == '}' {
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// repairJSONQuotes 遍历 src，将位于字符串字面量内部但并非真正结束的双引号改写成 \"
// 通过检查下一个非空白字符是否为 :, ], }, 或 , 来判断该 " 是否为字符串的结束
func repairJSONQuotes(src string) string {
	var b strings.Builder
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		if c == '"' && !escaped {
			if !inStr {
				inStr = true
				b.WriteByte(c)
			} else {
				j := i + 1
				for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
					j++
				}
				if j < len(src) && (src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}') {
					inStr = false
					b.WriteByte(c)
				} else {
					b.WriteString("\\\"")
				}
			}
			escaped = false

		} else if c == '\\' && !escaped {
			escaped = true
			b.WriteByte(c)

		} else {
			b.WriteByte(c)
			escaped = false
		}
	}

	return b.String()
}

var (
	salvageScoreFieldRe = regexp.MustCompile(`(?i)"?llm_score"?\s*[:：]\s*(\d{1,3})`)
	salvagePercentRe    = regexp.MustCompile(`(\d{1,3})\s*%`)
)

// salvageBareScore 从不可解析的输出中抢救一个 0-100 的裸分数
func salvageBareScore(content string) (int, bool) {
	for _, re := range []*regexp.Regexp{salvageScoreFieldRe, salvagePercentRe} {
		if m := re.FindStringSubmatch(content); m != nil {
			score, err := strconv.Atoi(m[1])
			if err == nil && score >= 0 && score <= 100 {
				return score, true
			}
		}
	}
	return 0, false
}
