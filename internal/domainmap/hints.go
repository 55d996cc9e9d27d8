package domainmap

import "regexp"

type hint struct {
	pattern *regexp.Regexp
	key     string
}

// hints are tried in order; the first match names the domain.
var hints = []hint{
	{regexp.MustCompile(`(?i)(装饰|装修|精装|石材|木饰面|墙面工程|吊顶)`), "decoration"},
	{regexp.MustCompile(`(?i)(房建|房屋建筑|主体|结构|混凝土|钢筋|模板|砌体)`), "building"},
	{regexp.MustCompile(`(?i)(市政.*道路|道路工程|路面|路床|沥青|水稳|交通导改)`), "municipal_road"},
	{regexp.MustCompile(`(?i)(排水|雨水|污水|给排水|管道|检查井|沟槽)`), "municipal_drain"},
	{regexp.MustCompile(`(?i)(机电|MEP|暖通|空调|电气|消防|弱电|桥架|管线综合|安装工程)`), "mep"},
	{regexp.MustCompile(`(?i)(公路|高速|路基|路面|JTG)`), "highway"},
	{regexp.MustCompile(`(?i)(水利|堤|闸|坝|泵站|SL\s?\d+)`), "water_resources"},
	{regexp.MustCompile(`(?i)(河道|清淤|疏浚|护坡|格宾|生态)`), "river_improvement"},
	{regexp.MustCompile(`(?i)(电力|输变电|变电|光伏|风电|能源|DL/T|NB/T)`), "power_energy"},
	{regexp.MustCompile(`(?i)(工业.*管道|工艺管道|压力试验|焊接|GB\s?50316)`), "industrial_pipeline"},
	{regexp.MustCompile(`(?i)(铁路|轨道|无砟|TB\s?\d+)`), "railway"},
	{regexp.MustCompile(`(?i)(室外|附属|园建|景观|广场|铺装|园林)`), "exterior"},
}

// HintKey derives a domain key from free text, or returns "".
func HintKey(text string) string {
	if text == "" {
		return ""
	}
	for _, h := range hints {
		if h.pattern.MatchString(text) {
			return h.key
		}
	}
	return ""
}
