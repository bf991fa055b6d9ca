package prompt

// UseCaseCategory 描述应用场景的一级分类及其子分类。
type UseCaseCategory struct {
	Name          string   `json:"name" yaml:"name" mapstructure:"name"`
	SubCategories []string `json:"sub_categories" yaml:"sub_categories" mapstructure:"sub_categories"`
}

// PlatformModels 描述一个平台以及可选择的模型。
type PlatformModels struct {
	Name   string   `json:"name" yaml:"name" mapstructure:"name"`
	Models []string `json:"models" yaml:"models" mapstructure:"models"`
}

// Catalog 汇总表单与统计使用的固定枚举。
type Catalog struct {
	Roles           []string          `json:"roles" yaml:"roles" mapstructure:"roles"`
	DefaultRole     string            `json:"default_role" yaml:"default_role" mapstructure:"default_role"`
	EducationLevels []string          `json:"education_levels" yaml:"education_levels" mapstructure:"education_levels"`
	OutputFormats   []string          `json:"output_formats" yaml:"output_formats" mapstructure:"output_formats"`
	Platforms       []PlatformModels  `json:"platforms" yaml:"platforms" mapstructure:"platforms"`
	UseCases        []UseCaseCategory `json:"use_cases" yaml:"use_cases" mapstructure:"use_cases"`
	Reactions       []string          `json:"reactions" yaml:"reactions" mapstructure:"reactions"`
}

// DefaultCatalog 返回内置的枚举，外部配置文件缺项时以此补齐。
func DefaultCatalog() Catalog {
	return Catalog{
		Roles: []string{
			"👨‍🏫 Lehrperson",
			"🎓 Lernende",
			"👨‍🎓 Schüler*in",
			"📚 Student*in",
			"🏭 Berufsbildner*in",
			"🏢 Schulverwaltung",
			"📖 Angestellte Mediothek",
			"🔧 Sonstige",
		},
		DefaultRole: "🔧 Sonstige",
		EducationLevels: []string{
			"🎨 Primar",
			"📐 Sekundar I",
			"🏭 Berufsfachschule",
			"🏛️ Gymnasium",
			"🎓 Fachhochschule",
			"📚 Höhere Fachschule",
			"🏫 Universität",
			"⚙️ ETH",
		},
		OutputFormats: []string{
			"Text", "HTML", "Markdown", "PDF", "Bild", "Video",
			"Audio", "Präsentation", "Tabelle", "Code", "JSON", "Quiz",
		},
		Platforms: []PlatformModels{
			{Name: "ChatGPT / OpenAI", Models: []string{"GPT-5.2", "GPT-5.1", "GPT-4.1", "GPT-4o", "GPT-4o mini", "o3", "o3-mini", "o3-pro"}},
			{Name: "Claude / Anthropic", Models: []string{"Claude Opus 4.5", "Claude Sonnet 4.5", "Claude Opus 4", "Claude Sonnet 4", "Claude Haiku 4.5", "Claude 4", "Claude 4.5"}},
			{Name: "Gemini / Google", Models: []string{"Gemini 3 Pro", "Gemini 3 Flash", "Gemini 2.5 Pro", "Gemini 2.5 Flash"}},
			{Name: "fobizz", Models: []string{"Mistral mini", "Llama 3", "Llama 3 mini", "GPT-OSS", "GPT-OSS small", "DeepSeek R1", "Qwen 3", "GPT-5", "GPT-5 mini", "GPT-4o", "GPT-4o mini", "GPT o3-mini", "Claude 4", "Claude 4.5", "Mistral"}},
			{Name: "Copilot / Microsoft", Models: []string{"GPT-5", "GPT-4.1", "Claude Sonnet 4", "Phi-4"}},
			{Name: "Perplexity", Models: []string{"Sonar", "Sonar-Pro", "Sonar-Reasoning"}},
			{Name: "DeepL Write", Models: []string{"DeepL Write"}},
			{Name: "Meta Llama", Models: []string{"Llama 4 Scout", "Llama 4 Maverick", "Llama 3.3 70B", "Llama 3.2 Vision", "Llama 3.1 405B"}},
			{Name: "Mistral AI", Models: []string{"Mistral Large 3", "Mistral Small 3.2", "Ministral 3"}},
			{Name: "Qwen / Alibaba", Models: []string{"Qwen3-235B", "Qwen3-Max", "QwQ-32B", "Qwen3-VL"}},
			{Name: "DeepSeek", Models: []string{"DeepSeek-V3.2", "DeepSeek-R1"}},
			{Name: "Manus", Models: []string{"Manus AI"}},
			{Name: "Kimi", Models: []string{"Kimi AI"}},
			{Name: "🎥 Video-Plattformen", Models: []string{"Synthesia.io", "HeyGen", "Krea", "NotebookLM", "Sonstige"}},
			{Name: "🎵 Audio-Plattformen", Models: []string{"ElevenLabs.io", "Sonstige"}},
		},
		UseCases: []UseCaseCategory{
			{Name: "Interaktive Internetseiten", SubCategories: []string{"Formative Lernkontrolle", "Summative Lernkontrolle", "Lernfeedback", "Visualisierung von Lerninhalten"}},
			{Name: "Design Office Programme", SubCategories: []string{"Word", "Excel", "Powerpoint"}},
			{Name: "Lerndossier Text", SubCategories: []string{"Aufgabenblatt", "Übungsblatt"}},
			{Name: "Projektmanagement", SubCategories: []string{"Aktivitätsdossier", "Aufgabenübersicht"}},
			{Name: "Administration", SubCategories: []string{"E-Mail-Texte", "Informationsbroschüren", "Flyer"}},
			{Name: "Prüfungen", SubCategories: []string{"Fragenvielfalt", "Fragenarchiv"}},
			{Name: "KI-Assistenten", SubCategories: []string{"Custom Prompt", "Lern-Bot", "Gesprächsbot", "Organisationsbot", "Korrekturbot"}},
			{Name: "Fotos", SubCategories: []string{"Photoshop", "Fotoreportagen"}},
			{Name: "Grafik und Infografik/Diagramme", SubCategories: []string{"HTML-Grafik", "Bild-Grafik"}},
			{Name: "Social Media Inhalte", SubCategories: []string{"Reel", "Gif", "Memes"}},
		},
		Reactions: Reactions(),
	}
}

// Normalize 用默认值补齐缺失的枚举，反馈符号始终固定为五个。
func (c Catalog) Normalize() Catalog {
	defaults := DefaultCatalog()
	if len(c.Roles) == 0 {
		c.Roles = defaults.Roles
	}
	if c.DefaultRole == "" {
		c.DefaultRole = defaults.DefaultRole
	}
	if len(c.EducationLevels) == 0 {
		c.EducationLevels = defaults.EducationLevels
	}
	if len(c.OutputFormats) == 0 {
		c.OutputFormats = defaults.OutputFormats
	}
	if len(c.Platforms) == 0 {
		c.Platforms = defaults.Platforms
	}
	if len(c.UseCases) == 0 {
		c.UseCases = defaults.UseCases
	}
	c.Reactions = Reactions()
	return c
}

// Taxonomy 返回一级分类到子分类的映射，供过滤时做分类回退匹配。
func (c Catalog) Taxonomy() map[string][]string {
	out := make(map[string][]string, len(c.UseCases))
	for _, category := range c.UseCases {
		out[category.Name] = category.SubCategories
	}
	return out
}

// UseCaseLabels 按声明顺序返回可选标签：子分类，没有子分类时为分类本身。
func (c Catalog) UseCaseLabels() []string {
	labels := make([]string, 0, len(c.UseCases)*3)
	for _, category := range c.UseCases {
		if len(category.SubCategories) == 0 {
			labels = append(labels, category.Name)
			continue
		}
		labels = append(labels, category.SubCategories...)
	}
	return labels
}

// HasOutputFormat 判断输出格式是否在枚举之内。
func (c Catalog) HasOutputFormat(format string) bool {
	for _, candidate := range c.OutputFormats {
		if candidate == format {
			return true
		}
	}
	return false
}
