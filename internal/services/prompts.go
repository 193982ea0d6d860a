// internal/services/prompts.go
package services

// 所有生成后端的提示词模板。占位符用 fmt.Sprintf 填充。

// scoreIdeaPrompt 创意评分。要求评委输出严格 JSON。
const scoreIdeaPrompt = `你是一部协作小说的创意评审。请对下面的创意提案打分。

## 小说信息
标题：%s
简介：%s

## 世界观摘要
%s

## 已采纳的创意
%s

## 待评审创意
提交人：%s
类型：%s
内容：%s

请从原创性(originality)、连贯性(coherence)、叙事价值(narrative_value)三个维度评分（各0-100），
并给出综合分 overall（0-100）。只输出如下 JSON，不要输出其他内容：
{"overall": 85, "originality": 80, "coherence": 90, "narrative_value": 85, "reason": "一句话点评"}`

// conflictCheckPrompt 冲突检测。fail-open：解析失败视为无冲突。
const conflictCheckPrompt = `你是一部协作小说的设定审核员。请判断新创意是否与既有设定冲突。

## 世界观设定
%s

## 已采纳的创意
%s

## 新创意
%s

只输出如下 JSON：
{"has_conflict": false, "conflicts": ["冲突点描述"], "suggestion": "如有冲突，给出一个兼顾双方的折中方案"}`

// generateChapterPrompt 从群聊消息缓冲合成章节
const generateChapterPrompt = `你是一位小说家，负责把群聊内容改编成连载小说《%s》的第%d章。

## 创作要求
%s

## 故事至今的全局摘要
%s

## 前情章节
%s

## 角色设定（群友 → 小说角色）
%s

## 新参与者
%s

## 本章素材（群聊记录）
%s
%s
要求：正文不超过%d字；兼顾素材中的趣味点但保持小说叙事的完整性。
只输出如下 JSON：
{"chapter_title": "章节标题（不含第N章前缀）", "content": "章节正文", "summary": "200字以内本章摘要", "updated_summary": "500字以内的全局摘要替换文本", "character_updates": [{"canonical_name": "角色名", "description": "更新后的角色描述"}]}`

// forceEndingInstruction 强制结局指令，注入到章节生成素材之后
const forceEndingInstruction = `
## 重要：强制结局要求
这是本小说的最后一章，你必须在本章中为整个故事写出完整的结局。
要求：交代所有主要角色的命运、解决悬而未决的情节线、给出明确的故事结尾。
结尾要有仪式感，让读者感受到故事的圆满收束。
`

// rewriteChapterPrompt 按用户指示重写既有章节
const rewriteChapterPrompt = `你是一位小说家，负责重写连载小说《%s》的第%d章。

## 创作要求
%s

## 故事至今的全局摘要
%s

## 前情章节
%s

## 后续章节
%s

## 角色设定
%s

## 原章节内容
%s

## 重写指示
%s

要求：正文不超过%d字；与前后章节保持连贯。
只输出如下 JSON：
{"chapter_title": "章节标题（不含第N章前缀）", "content": "重写后的正文", "summary": "200字以内本章摘要"}`

// mapCharactersPrompt 把新的群聊参与者映射为小说角色
const mapCharactersPrompt = `协作小说需要为新的群聊参与者设计小说角色。

## 新参与者
%s

## 已有角色
%s

## 创作要求
%s

为每位新参与者设计一个契合故事的角色。只输出如下 JSON：
{"characters": [{"display_name": "群友名", "canonical_name": "小说中的角色名", "description": "角色设定"}]}`

// generateScenePrompt 场景生成
const generateScenePrompt = `你是一位小说家，正在为《%s》的章节「%s」写一个新场景。

## 故事至今的全局摘要
%s

## 前一场景摘要
%s

## 相关角色
%s

## 地点
%s

## 世界观设定
%s

## 文风要求（%s）
%s

## 文风参考样本
%s

## 场景大纲
%s

请直接输出场景正文，不超过%d字，不要输出任何说明文字。`

// summarizeScenePrompt 场景摘要（软依赖，失败退化为截断）
const summarizeScenePrompt = `用不超过150字概括下面这段小说内容的关键情节与角色变化，直接输出摘要：

%s`

// summarizeGlobalPrompt 全局滚动摘要更新（有损压缩，旧细节随篇幅增长被丢弃）
const summarizeGlobalPrompt = `把旧的故事摘要与最新情节合并为一份新的全局摘要，不超过400字。
保留主线脉络与角色关键状态，可以舍弃早期细节。直接输出新摘要。

## 旧摘要
%s

## 最新情节
%s`

// reviseScenePass1Prompt 三轮修正第一轮：审读
const reviseScenePass1Prompt = `你是《%s》的责任编辑。请审读以下场景，指出需要修改的问题。
当前文风：%s

## 故事至今的全局摘要
%s

## 场景内容
%s

## 相关角色
%s

只输出如下 JSON：
{"suggestions": [{"type": "问题类型", "fix": "具体修改建议"}], "overall_comment": "总评"}`

// reviseScenePass2Prompt 三轮修正第二轮：执行修改（硬依赖）
const reviseScenePass2Prompt = `请根据编辑意见重写以下场景。

## 原场景
%s

## 编辑意见
%s

## 文风要求（%s）
%s

## 文风参考样本
%s

直接输出重写后的场景正文，不要输出任何说明文字。`

// reviseScenePass3Prompt 三轮修正第三轮：审校（软依赖，失败保留第二轮结果）
const reviseScenePass3Prompt = `请审校以下重写稿，确保与世界观、角色设定一致，修复遗留的不一致之处。

## 重写稿
%s

## 原稿（参考）
%s

## 世界观设定
%s

## 相关角色
%s

直接输出最终版正文，不要输出任何说明文字。`

// sceneDelimiter 用户介入修正时场景分节的定界行格式：【场景 N】
const sceneDelimiterFormat = "【场景 %d】"

// userGuidedRevisionPrompt 用户介入的整章修正。
// 多场景章节要求模型按给定定界行原样分节，便于回填各场景。
const userGuidedRevisionPrompt = `你是《%s》的责任编辑，请根据读者反馈修正第%d章「%s」。
当前文风：%s

## 世界观设定
%s

## 相关角色
%s

## 章节当前内容（共%d个场景，每个场景以【场景 N】行开头）
%s

## 读者反馈
%s

请输出修正后的整章内容。必须保留与输入完全相同的【场景 N】定界行，
每个场景的修正内容紧跟在对应定界行之后，不要增删场景。`

// extractCharactersPrompt 从场景中提取新角色
const extractCharactersPrompt = `从下面的小说场景中找出尚未登记的新角色。

## 已登记角色
%s

## 场景内容
%s

只输出如下 JSON（没有新角色时输出空数组）：
{"characters": [{"canonical_name": "角色名", "description": "一句话描述", "aliases": ["别名"]}]}`

// evaluateQualityPrompt 消息质量门（fail-open：解析失败视为充分）
const evaluateQualityPrompt = `判断下面的群聊记录是否足以支撑一章小说的创作。
判断标准：是否有可叙事的事件、话题或互动；纯表情、签到、无意义灌水不算。
充分性阈值：有效内容占比至少约%d%%。

## 群聊记录
%s

只输出如下 JSON：
{"sufficient": true, "ratio": "有效内容占比估计", "reason": "一句话理由"}`

// filterMessagesPrompt 轻量过滤：选出值得保留的消息下标
const filterMessagesPrompt = `从下面编号的群聊消息中选出对小说创作有价值的消息。

%s

只输出如下 JSON（下标从0开始）：
{"keep_indices": [0, 2, 5]}`

// refineWorldviewPrompt 世界观 AI 精炼
const refineWorldviewPrompt = `请把下面的世界观设定整理成结构清晰、无内在矛盾的设定文档。
保留所有原始信息，补全明显缺失的逻辑衔接，不要虚构与原文矛盾的内容。

## 原始设定
%s

直接输出整理后的设定文档。`
