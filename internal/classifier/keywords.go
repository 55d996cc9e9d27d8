package classifier

// KeywordRule maps a project type to the keywords that indicate it.
type KeywordRule struct {
	ProjectType string
	Keywords    []string
}

// DefaultKeywordTable is scored in declaration order; on equal hit counts the earlier entry wins.
var DefaultKeywordTable = []KeywordRule{
	{"幕墙工程", []string{"幕墙", "玻璃幕墙", "石材幕墙", "铝板幕墙", "单元式幕墙"}},
	{"装饰装修", []string{"装修", "装饰", "精装", "室内装饰", "吊顶", "墙面", "地面", "涂料", "石材", "木饰面"}},
	{"市政排水", []string{"排水", "雨水", "污水", "雨污", "管网", "管道", "顶管", "检查井", "泵站", "污水处理"}},
	{"市政道路", []string{"市政道路", "道路", "路面", "沥青", "水稳", "路基", "人行道", "交通导改", "标线", "标志"}},
	{"房建", []string{"房建", "住宅", "楼", "主体结构", "钢筋", "混凝土", "基础", "桩基", "结构施工"}},
	{"机电安装", []string{"机电", "暖通", "空调", "电气", "消防", "给排水", "弱电", "桥架", "风管", "管线"}},
	{"园林景观", []string{"园林", "绿化", "景观", "铺装", "广场", "乔木", "灌木", "草坪", "园建"}},
}
