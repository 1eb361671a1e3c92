package domain

// ListingItem 是首页/搜索页上的一条剧集卡片。
//
// 约束：
// - ID 是站点分配的数字串（至少 10 位），同一次抽取内唯一（先出现者优先）
// - Title 最多 200 个字符
// - URL 必须是绝对地址；Thumbnail 为绝对地址或空
type ListingItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail"`
	Lang      string `json:"lang"`
}

// DetailRecord 是单部剧集的完整元数据（含有序章节列表）。
//
// 约束：
// - Title 至少 2 个字符；达不到时整条记录视为不存在
// - Tags 去重，每个 2–49 个字符
// - Chapters 按 ChapterNumber 升序（不是发现顺序）
type DetailRecord struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Thumbnail   string        `json:"thumbnail"`
	Tags        []string      `json:"tags"`
	Chapters    []ChapterItem `json:"chapters"`
	URL         string        `json:"url"`
}

// ChapterItem 是剧集内的一个可播放单元（集/章）。
// ID 不会等于所属 DetailRecord 的 ID（排除指向自身的链接）。
type ChapterItem struct {
	ID            string `json:"id"`
	ChapterNumber int    `json:"chapter_number"`
	Title         string `json:"title"`
	URL           string `json:"url"`
}
