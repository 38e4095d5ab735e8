package pipeline

import (
	"fmt"

	"github.com/sells-group/posting-cli/internal/model"
)

type stagePrompt struct {
	system string
	build  func(text string) string
}

const jsonOnly = "IMPORTANT: Respond ONLY with the JSON object. No explanation, reasoning or extra text."

var stagePrompts = map[model.Stage]stagePrompt{
	model.StageBasic: {
		system: "You extract academic and research position details from text and answer in JSON.\n\n" + jsonOnly,
		build:  basicPrompt,
	},
	model.StageClassify: {
		system: "You categorize academic positions and research fields described in text.\n\n" + jsonOnly,
		build:  classifyPrompt,
	},
	model.StageLocalize: {
		system: "你是学术信息提取专家。请分析文本，并用标准简体中文提取所需信息。\n\n重要：只返回JSON对象，不要包含任何解释或其他文字。",
		build:  localizePrompt,
	},
}

func basicPrompt(text string) string {
	return fmt.Sprintf(`TEXT TO ANALYZE:
%s

EXTRACTION INSTRUCTIONS:
- Extract ONLY what the text states explicitly. Use the defaults below when something is missing.
- Return a COMPLETE JSON object with ALL fields.

1. "Deadline": the application deadline in YYYY-MM-DD format. Use "Soon" when no deadline is given.
2. "Number_Places": the number of positions, summed across positions. Use "1" when not stated. Leave empty for competitions, summer schools, conferences and workshops.
3. "Direction": the research direction or project topic. Capitalize only the first word and proper nouns.
   Example: "PhD Position: Using AI for Pandemic Preparedness (PARAATHEID)" becomes "Using AI for pandemic preparedness".
4. "University_EN": the full English name of the institution. Expand abbreviations. Leave empty when uncertain.
5. "Contact_Name": the first contact person named in the text, or "-" when none is given.
   - Allowed prefixes are "Dr. ", "Mr. ", "Ms. " or none.
   - Never use "Prof.", "Professor", "Assistant Professor" or "Associate Professor".
   - Drop degree suffixes such as "Ph.D." or "PhD" and quoted nicknames.
   - A professor of any rank, a doctor or a PhD holder gets "Dr. ":
     * "Prof. John Smith" -> "Dr. John Smith"
     * "Associate Professor Michael Brown" -> "Dr. Michael Brown"
     * "John Smith, Ph.D." -> "Dr. John Smith"
   - Without such evidence give the bare name: "John Smith".
6. "Contact_Email": the email address given in the text, or "-" when none is given. Never guess one.
   - Rewrite "[at]", "(at)" and " at " as "@", and "[dot]", "(dot)" as ".":
     * "yichun.fan[at]duke.edu" -> "yichun.fan@duke.edu"
     * "name (at) school (dot) edu" -> "name@school.edu"

REQUIRED JSON FORMAT (example values only):
{
  "Deadline": "2024-03-15",
  "Number_Places": "3",
  "Direction": "Machine learning for environmental monitoring",
  "University_EN": "University of Cambridge",
  "Contact_Name": "Dr. John Smith",
  "Contact_Email": "j.smith@cam.ac.uk"
}
`, text)
}

func classifyPrompt(text string) string {
	return fmt.Sprintf(`TEXT TO ANALYZE:
%s

CATEGORIZATION INSTRUCTIONS:
- Categorize ONLY from what the text states. Mark a category "1" when it applies, otherwise leave it "".
- Return a COMPLETE JSON object with ALL fields.

Position and event types:
- "Master Student", "Doctoral Student" (PhD students), "Research Assistant"
- "PostDoc": postdoctoral researchers, including research assistant roles that require a PhD
- "Competition", "Summer School", "Conference", "Workshop"

Research fields (mark at least 1 and at most 3):
- "Physical_Geo": physical geography, environmental and earth sciences, climatology, ecology, geology, hydrology, soil science, natural hazards, oceanography
- "Human_Geo": human, health, economic, social, cultural and political geography, demography, migration, tourism, development and regional studies
- "Urban": urban planning and design, smart cities, land use, architecture, housing, transportation, urban analytics
- "GIS": geographic information science, spatial analysis and statistics, cartography, geoinformatics, spatial epidemiology, disease mapping
- "RS": remote sensing, satellite and drone imagery, earth observation, multispectral and hyperspectral analysis, radar, LiDAR, land cover classification
- "GNSS": satellite navigation, GPS, surveying and mapping, geodesy, precise positioning

REQUIRED JSON FORMAT (example values only):
{
  "Master Student": "",
  "Doctoral Student": "1",
  "PostDoc": "",
  "Research Assistant": "",
  "Competition": "",
  "Summer School": "",
  "Conference": "",
  "Workshop": "",
  "Physical_Geo": "1",
  "Human_Geo": "",
  "Urban": "",
  "GIS": "1",
  "RS": "",
  "GNSS": ""
}
`, text)
}

func localizePrompt(text string) string {
	return fmt.Sprintf(`要分析的文本：
%s

提取要求：
- 只提取文本中提到的信息，无法确定时留空。
- 所有内容必须使用标准简体中文，不得包含繁体字、英文字母、数字或特殊符号。
- 必须返回包含全部字段的完整JSON对象。

1. "University_CN"：项目所属大学或机构的中文全称，有多个时只选最主要的。
2. "Country_CN"：该机构所在国家的中文名称。
3. "WX_Label1"：最符合的专业学科，必须填写，例如"生态学"、"地质学"、"环境科学"。
4. "WX_Label2"：其他相关学科或研究方向，例如"空间分析"、"深度学习"。
5. "WX_Label3"：其他相关研究方向，可选。
6. "WX_Label4"：留空。
7. "WX_Label5"：留空。

注意：
- 不得填写"自然地理学"、"人文地理学"、"地理信息科学"、"地理信息系统"、"城市规划"、"遥感"、"卫星导航系统"。
- 每个标签不超过6个字。

JSON格式（示例值，请勿照抄）：
{
  "University_CN": "剑桥大学",
  "Country_CN": "英国",
  "WX_Label1": "数据科学",
  "WX_Label2": "环境监测",
  "WX_Label3": "机器学习",
  "WX_Label4": "",
  "WX_Label5": ""
}
`, text)
}
