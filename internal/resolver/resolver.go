// Package resolver 把人类可读的媒体名称解析为候选域名。
// 解析顺序：内置别名表 -> 外部覆盖文件 -> 持久化缓存 -> 搜索引擎兜底。
package resolver

import (
	"encoding/json"
	"log"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/LJTian/MediaTrack/internal/search"
)

const WechatHost = "mp.weixin.qq.com"

// MappingStore 是对持久层 site_mappings 的最小依赖
type MappingStore interface {
	GetSiteDomain(name string) (string, error)
	AddSiteMapping(name, domain string) error
}

// 第三方平台域名，搜索兜底时默认排除；微信主域在判定为公众号名称时放行
var thirdPartyHosts = []string{
	"weibo.com", "kuaibao.qq.com", "toutiao.com", "baijiahao.baidu.com", "zhihu.com",
	"xhs.cn", "bilibili.com", "douyin.com", "kuaishou.com", "weixin.qq.com",
}

var hostPrefix = regexp.MustCompile(`^(www|m|mp|wap)\.`)

func normHost(h string) string {
	h = strings.TrimSpace(strings.ToLower(h))
	return hostPrefix.ReplaceAllString(h, "")
}

// looksLikeWechatName 识别"××发布 / ××办 / ××台"式的政务、公众号名称
func looksLikeWechatName(name string) bool {
	for _, suffix := range []string{"发布", "办", "台", "频道", "时政", "中心"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

type aliasEntry struct {
	Domains  []string `json:"domains"`
	Platform string   `json:"platform"`
}

// 内置别名表：媒体名称 -> 域名列表。不确定的留空列表，交给搜索兜底。
var builtinAlias = map[string]aliasEntry{
	"中央广电总台":     {Domains: []string{"cctv.com", "cnr.cn", "yangshipin.cn"}, Platform: "web"},
	"人民日报数字广东":   {Domains: []string{"gd.people.com.cn"}, Platform: "web"},
	"央广网":        {Domains: []string{"cnr.cn"}, Platform: "web"},
	"中新社":        {Domains: []string{"chinanews.com.cn"}, Platform: "web"},
	"中国企业报":      {Domains: []string{"zqcn.com.cn"}, Platform: "web"},
	"中国青年报":      {Domains: []string{"cyol.com"}, Platform: "web"},
	"中国报道":       {Domains: []string{"china-report.com.cn", "china-report.net"}, Platform: "web"},
	"上海证券报":      {Domains: []string{"cnstock.com"}, Platform: "web"},
	"南方日报":       {Domains: []string{"southcn.com"}, Platform: "web"},
	"羊城晚报":       {Domains: []string{"ycwb.com", "news.ycwb.com"}, Platform: "web"},
	"广州日报":       {Domains: []string{"dayoo.com", "gzdaily.dayoo.com"}, Platform: "web"},
	"南方都市报":      {Domains: []string{"nandu.com", "static.nfapp.southcn.com", "southcn.com"}, Platform: "web"},
	"新快报":        {Domains: []string{"xkb.com.cn"}, Platform: "web"},
	"广东建设报":      {Domains: []string{"gdjsb.net"}, Platform: "web"},
	"信息时报":       {Domains: []string{"xxsb.com", "gzxxts.com"}, Platform: "web"},
	"广东电视台":      {Domains: []string{"gdtv.cn"}, Platform: "web"},
	"广东经视":       {Domains: []string{"gdtv.cn"}, Platform: "web"},
	"大湾区卫视":      {Domains: []string{"gdtv.cn"}, Platform: "web"},
	"广东民生DV现场":   {Domains: []string{"gdtv.cn"}, Platform: "web"},
	"广东广播电视台广播融媒体中心": {Domains: []string{"gdtv.cn"}, Platform: "web"},
	"广东台时政":      {Domains: []string{"gdtv.cn"}, Platform: "web"},
	"广州电视台":      {Domains: []string{"gztv.com"}, Platform: "web"},
	"广州电台":       {Domains: []string{}, Platform: "web"},
	"广州交通台":      {Domains: []string{}, Platform: "web"},
	"大洋网":        {Domains: []string{"dayoo.com"}, Platform: "web"},

	"南方网": {Domains: []string{"southcn.com"}, Platform: "web"},
	"南方+": {Domains: []string{"nfnews.com", "static.nfnews.com", "pc.nfapp.southcn.com", "southcn.com"}, Platform: "web"},

	"广州越秀发布": {Domains: []string{"yuexiu.gov.cn"}, Platform: "web"},
	"广州荔湾发布": {Domains: []string{"liwan.gov.cn"}, Platform: "web"},
	"广州海珠发布": {Domains: []string{"haizhu.gov.cn"}, Platform: "web"},
	"广州天河发布": {Domains: []string{"tianhe.gov.cn", "thnet.gov.cn"}, Platform: "web"},
	"广州白云发布": {Domains: []string{"baiyun.gov.cn"}, Platform: "web"},
	"广州黄埔发布": {Domains: []string{"huangpu.gov.cn", "gdd.gov.cn", "hp.gov.cn"}, Platform: "web"},
	"广州花都发布": {Domains: []string{"huadu.gov.cn"}, Platform: "web"},
	"广州番禺发布": {Domains: []string{"panyu.gov.cn"}, Platform: "web"},
	"广州南沙发布": {Domains: []string{"nansha.gov.cn"}, Platform: "web"},
	"广州从化发布": {Domains: []string{"conghua.gov.cn"}, Platform: "web"},
	"广州增城发布": {Domains: []string{"zengcheng.gov.cn"}, Platform: "web"},

	"人民网":  {Domains: []string{"people.com.cn", "cpc.people.com.cn", "politics.people.com.cn"}, Platform: "web"},
	"新华社":  {Domains: []string{"xinhuanet.com", "news.cn"}, Platform: "web"},
	"央视网":  {Domains: []string{"cctv.com", "news.cctv.com"}, Platform: "web"},
	"广州发布": {Domains: []string{"gz.gov.cn"}, Platform: "web"},
}

type Resolver struct {
	store     MappingStore
	search    search.Func
	aliasFile string
}

func New(store MappingStore, searchFn search.Func, aliasFile string) *Resolver {
	return &Resolver{store: store, search: searchFn, aliasFile: aliasFile}
}

// loadExternal 每次解析时读取覆盖文件，实现热加载；文件不存在或损坏时忽略。
// 值兼容三种写法：{domains, platform} 对象、域名数组、单个域名字符串。
func (r *Resolver) loadExternal() map[string]aliasEntry {
	if r.aliasFile == "" {
		return nil
	}
	data, err := os.ReadFile(r.aliasFile)
	if err != nil {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Printf("resolver: bad alias file %s: %v", r.aliasFile, err)
		return nil
	}
	out := make(map[string]aliasEntry, len(raw))
	for name, v := range raw {
		var entry aliasEntry
		if err := json.Unmarshal(v, &entry); err == nil && (len(entry.Domains) > 0 || entry.Platform != "") {
			// ok
		} else {
			var list []string
			if err := json.Unmarshal(v, &list); err == nil {
				entry = aliasEntry{Domains: list, Platform: "web"}
			} else {
				var s string
				if err := json.Unmarshal(v, &s); err != nil {
					continue
				}
				entry = aliasEntry{Domains: []string{s}, Platform: "web"}
			}
		}
		if entry.Platform == "" {
			entry.Platform = "web"
		}
		for i, d := range entry.Domains {
			entry.Domains[i] = normHost(d)
		}
		out[strings.TrimSpace(name)] = entry
	}
	return out
}

func (r *Resolver) lookupAlias(name string) (aliasEntry, bool) {
	if entry, ok := r.loadExternal()[name]; ok {
		return entry, true
	}
	entry, ok := builtinAlias[name]
	return entry, ok
}

// ResolveMulti 返回一个媒体名称的候选域名，去重并截断到 topK。
// 第一个候选会写回持久化缓存，供下次直接命中。
func (r *Resolver) ResolveMulti(name string, topK int, allowWechat bool) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if topK <= 0 {
		topK = 4
	}

	var out []string
	entry, hasAlias := r.lookupAlias(name)
	if hasAlias {
		for _, d := range entry.Domains {
			out = append(out, normHost(d))
		}
	}

	if r.store != nil {
		if cached, err := r.store.GetSiteDomain(name); err == nil && cached != "" {
			out = append(out, normHost(cached))
		}
	}

	if len(out) == 0 && r.search != nil {
		wechatOK := allowWechat && (looksLikeWechatName(name) || (hasAlias && entry.Platform == "wechat"))
		for _, u := range r.search(name+" 官网", 10) {
			p, err := url.Parse(u)
			if err != nil {
				continue
			}
			host := normHost(p.Host)
			if host == "" || r.blocked(host, wechatOK) {
				continue
			}
			out = append(out, host)
			if len(out) >= topK {
				break
			}
		}
	}

	out = uniq(out, topK)
	if len(out) > 0 && r.store != nil {
		if err := r.store.AddSiteMapping(name, out[0]); err != nil {
			log.Printf("resolver: cache %s: %v", name, err)
		}
	}
	return out
}

// Resolve 兼容单域名入口
func (r *Resolver) Resolve(name string) string {
	arr := r.ResolveMulti(name, 1, true)
	if len(arr) == 0 {
		return ""
	}
	return arr[0]
}

// DiscoverDomainsByKeywords 在没有媒体名称时直接用关键词搜出候选站点
func (r *Resolver) DiscoverDomainsByKeywords(keywords []string, topN int) []string {
	if len(keywords) == 0 || r.search == nil {
		return nil
	}
	if topN <= 0 {
		topN = 3
	}
	kws := keywords
	if len(kws) > 6 {
		kws = kws[:6]
	}
	var hosts []string
	seen := make(map[string]struct{})
	for _, u := range r.search(strings.Join(kws, " "), 12) {
		p, err := url.Parse(u)
		if err != nil {
			continue
		}
		host := normHost(p.Host)
		if host == "" || r.blocked(host, false) {
			continue
		}
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		hosts = append(hosts, host)
		if len(hosts) >= topN {
			break
		}
	}
	return hosts
}

func (r *Resolver) blocked(host string, wechatOK bool) bool {
	for _, t := range thirdPartyHosts {
		if !strings.Contains(host, t) {
			continue
		}
		if wechatOK && t == "weixin.qq.com" {
			continue
		}
		return true
	}
	return false
}

func uniq(in []string, cap int) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if len(out) >= cap {
			break
		}
	}
	return out
}

var cnSecondLevel = map[string]struct{}{"com": {}, "net": {}, "org": {}, "gov": {}, "edu": {}}

// RegDomain 返回站点身份比较用的可注册域名，如 news.dayoo.com -> dayoo.com
func RegDomain(host string) string {
	host = strings.ToLower(host)
	parts := strings.Split(host, ".")
	n := len(parts)
	if n >= 3 && parts[n-1] == "cn" {
		if _, ok := cnSecondLevel[parts[n-2]]; ok {
			return strings.Join(parts[n-3:], ".")
		}
	}
	if n >= 2 {
		return strings.Join(parts[n-2:], ".")
	}
	return host
}

// WidenDomains 把每个域名扩展出它的可注册父域，后缀匹配时以召回换精度
func WidenDomains(domains []string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(d string) {
		if d == "" {
			return
		}
		if _, ok := seen[d]; ok {
			return
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	for _, d := range domains {
		d = strings.TrimSpace(strings.ToLower(d))
		if d == "" {
			continue
		}
		add(d)
		add(RegDomain(d))
	}
	return out
}
