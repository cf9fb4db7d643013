package dto

// CreatePurposeRequest - запрос на создание цели (HTTP)
type CreatePurposeRequest struct {
	Name           string   `json:"name"`
	Description    *string  `json:"description,omitempty"`
	Instruction    string   `json:"instruction"`
	SampleKeywords []string `json:"sampleKeywords,omitempty"`
	IsDefault      *bool    `json:"isDefault,omitempty"`
	IsActive       *bool    `json:"isActive,omitempty"`
}

// UpdatePurposeRequest - частичное обновление цели (HTTP)
type UpdatePurposeRequest struct {
	Name           *string  `json:"name,omitempty"`
	Description    *string  `json:"description,omitempty"`
	Instruction    *string  `json:"instruction,omitempty"`
	SampleKeywords []string `json:"sampleKeywords,omitempty"`
	IsDefault      *bool    `json:"isDefault,omitempty"`
	IsActive       *bool    `json:"isActive,omitempty"`
}

// CreateTodoRequest - запрос на создание задачи из снимка (HTTP)
type CreateTodoRequest struct {
	Title           string  `json:"title"`
	SourceCaptureID *string `json:"sourceCaptureId,omitempty"`
}

type UpdateTodoRequest struct {
	Done *bool `json:"done"`
}

// IDResponse - ответ на удаление
type IDResponse struct {
	ID string `json:"id"`
}

// RetryResponse - ответ на повторную обработку снимка
type RetryResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// StagedFile - файл, временно сохранённый при шаринге с мобильного
type StagedFile struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Size   int64  `json:"size"`
	Base64 string `json:"base64"`
}

// ShareIntakeResponse - ответ на приём файлов для шаринга
type ShareIntakeResponse struct {
	Token     string `json:"token"`
	Files     int    `json:"files"`
	ExpiresAt string `json:"expiresAt"`
}

// StagedShareResponse - содержимое подготовленного шаринга
type StagedShareResponse struct {
	CreatedAt string       `json:"createdAt"`
	Files     []StagedFile `json:"files"`
}

// CommitShareRequest - сохранение подготовленных файлов как снимков
type CommitShareRequest struct {
	PurposeID *string `json:"purposeId,omitempty"`
}
