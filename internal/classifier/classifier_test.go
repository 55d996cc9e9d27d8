package classifier_test

import (
	"testing"

	"github.com/aretw0/preflight/internal/classifier"
	"github.com/aretw0/preflight/internal/testutils"
	"github.com/aretw0/preflight/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, p *testutils.Project) *classifier.Classifier {
	t.Helper()
	c, err := classifier.Load(p.Path(testutils.ProfileRulesFile))
	require.NoError(t, err)
	return c
}

func TestClassify_Explicit(t *testing.T) {
	c := load(t, testutils.SetupProject(t))

	profile := c.Classify(domain.Payload{"工程类型": " 市政道路 ", "topic": "装修"})
	assert.Equal(t, "市政道路", profile.ProjectType.Value)
	assert.Equal(t, 1.0, profile.ProjectType.Confidence)
	assert.Equal(t, "explicit:工程类型", profile.ProjectType.Source)
	assert.Equal(t, domain.DecisionAutoAccept, profile.Decision)
	assert.Equal(t, []string{"交通导改"}, profile.MandatoryDimensions)
}

func TestClassify_ExplicitFieldOrder(t *testing.T) {
	c := load(t, testutils.SetupProject(t))

	pt := c.InferType(domain.Payload{"domain_cn": "房建", "project_type": "园林景观"})
	assert.Equal(t, "园林景观", pt.Value, "project_type is checked first")

	pt = c.InferType(domain.Payload{"project_type": "   ", "project_category": "房建"})
	assert.Equal(t, "房建", pt.Value, "blank values are skipped")
}

func TestClassify_DecorationKeywords(t *testing.T) {
	c := load(t, testutils.SetupProject(t))

	profile := c.Classify(domain.Payload{
		"topic":   "装饰装修工程施工组织设计",
		"outline": []any{"工程概况", "施工方案"},
	})
	assert.Equal(t, "装饰装修", profile.ProjectType.Value)
	assert.Equal(t, "keyword", profile.ProjectType.Source)
	assert.ElementsMatch(t, []string{"装修", "装饰"}, profile.ProjectType.Evidence)
	assert.Equal(t, 0.78, profile.ProjectType.Confidence)
	assert.Equal(t, domain.DecisionManualConfirm, profile.Decision)
	assert.Equal(t, []string{"工序工艺", "质量验收", "成品保护"}, profile.MandatoryDimensions)
	assert.NotEmpty(t, profile.RuleSHA256)
	assert.Equal(t, "2024.06", profile.RuleVersion)
}

func TestClassify_KeywordConfidenceCeiling(t *testing.T) {
	c := load(t, testutils.SetupProject(t))

	// Ten decoration keywords: 0.75 + 0.27 would exceed the ceiling.
	pt := c.InferType(domain.Payload{"text": "装修 装饰 精装 室内装饰 吊顶 墙面 地面 涂料 石材 木饰面"})
	assert.Equal(t, "装饰装修", pt.Value)
	assert.LessOrEqual(t, pt.Confidence, 0.85)
	assert.Less(t, pt.Confidence, c.Thresholds().AutoAccept)
}

func TestClassify_CeilingFollowsLowAutoAccept(t *testing.T) {
	p := testutils.SetupProject(t)
	p.WriteJSON(t, testutils.ProfileRulesFile, map[string]any{
		"confidence_thresholds":  map[string]any{"auto_accept": 0.78},
		"project_type_inference": map[string]any{"base_confidence": 0.95},
	})
	c := load(t, p)

	pt := c.InferType(domain.Payload{"topic": "装修 装饰 精装"})
	assert.Equal(t, 0.77, pt.Confidence)
	assert.Equal(t, 0.70, c.Thresholds().RequireManualConfirm, "missing thresholds keep their defaults")
}

func TestClassify_TieKeepsDeclarationOrder(t *testing.T) {
	c := load(t, testutils.SetupProject(t))

	// One hit each for 幕墙工程 and 市政排水.
	pt := c.InferType(domain.Payload{"topic": "幕墙与排水"})
	assert.Equal(t, "幕墙工程", pt.Value)
	assert.Equal(t, 0.75, pt.Confidence)
}

func TestClassify_NoSignal(t *testing.T) {
	c := load(t, testutils.SetupProject(t))

	profile := c.Classify(domain.Payload{})
	assert.Empty(t, profile.ProjectType.Value)
	assert.Equal(t, "none", profile.ProjectType.Source)
	assert.Equal(t, domain.DecisionBlockAndReview, profile.Decision)
	assert.Empty(t, profile.MandatoryDimensions)

	profile = c.Classify(domain.Payload{"topic": "Quarterly report"})
	assert.Equal(t, "keyword:none", profile.ProjectType.Source)
	assert.Equal(t, 0.0, profile.ProjectType.Confidence)
	assert.Equal(t, domain.DecisionBlockAndReview, profile.Decision)
}

func TestLoad_Errors(t *testing.T) {
	p := testutils.SetupProject(t)

	_, err := classifier.Load(p.Path("rules/absent.json"))
	assert.ErrorIs(t, err, domain.ErrConfig)

	p.Write(t, testutils.ProfileRulesFile, "[1, 2]")
	_, err = classifier.Load(p.Path(testutils.ProfileRulesFile))
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestExtractText(t *testing.T) {
	text := classifier.ExtractText(domain.Payload{
		"description": "描述",
		"topic":       "主题",
		"outline":     []any{"一", 2, "二"},
		"ignored":     "x",
	})
	assert.Equal(t, "主题\n一\n二\n描述", text)
}
