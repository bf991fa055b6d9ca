package email

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// SMTPConfig 描述 SMTP 通知所需的配置。
type SMTPConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	Recipient     string
	PublicBaseURL string
}

// AliyunConfig 描述阿里云邮件推送（DirectMail）的必要配置。
type AliyunConfig struct {
	AccessKeyID     string
	AccessKeySecret string
	RegionID        string
	AccountName     string
	FromAlias       string
	TagName         string
	ReplyToAddress  bool
	Endpoint        string
	AddressType     int32
	Recipient       string
	PublicBaseURL   string
}

// LoadSMTPConfigFromEnv 从环境变量读取 SMTP 配置，recipient 为管理员邮箱。
// 返回值：配置、是否启用、错误。
func LoadSMTPConfigFromEnv(recipient string) (SMTPConfig, bool, error) {
	host := strings.TrimSpace(os.Getenv("SMTP_HOST"))
	portStr := strings.TrimSpace(os.Getenv("SMTP_PORT"))
	from := strings.TrimSpace(os.Getenv("SMTP_FROM"))
	recipient = strings.TrimSpace(recipient)

	if host == "" || portStr == "" || from == "" || recipient == "" {
		return SMTPConfig{}, false, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return SMTPConfig{}, false, fmt.Errorf("parse SMTP_PORT: %w", err)
	}

	return SMTPConfig{
		Host:          host,
		Port:          port,
		Username:      os.Getenv("SMTP_USERNAME"),
		Password:      os.Getenv("SMTP_PASSWORD"),
		From:          from,
		Recipient:     recipient,
		PublicBaseURL: os.Getenv("APP_PUBLIC_BASE_URL"),
	}, true, nil
}

// LoadAliyunConfigFromEnv 从环境变量读取阿里云邮件推送配置。
// 返回值：配置、是否启用、错误。
func LoadAliyunConfigFromEnv(recipient string) (AliyunConfig, bool, error) {
	accessKey := strings.TrimSpace(os.Getenv("ALIYUN_DM_ACCESS_KEY_ID"))
	secret := strings.TrimSpace(os.Getenv("ALIYUN_DM_ACCESS_KEY_SECRET"))
	region := strings.TrimSpace(os.Getenv("ALIYUN_DM_REGION_ID"))
	accountName := strings.TrimSpace(os.Getenv("ALIYUN_DM_ACCOUNT_NAME"))
	recipient = strings.TrimSpace(recipient)

	if accessKey == "" || secret == "" || region == "" || accountName == "" || recipient == "" {
		return AliyunConfig{}, false, nil
	}

	endpoint := strings.TrimSpace(os.Getenv("ALIYUN_DM_ENDPOINT"))
	if endpoint == "" {
		endpoint = "dm.aliyuncs.com"
	}

	replyToAddress := true
	if replyStr := strings.TrimSpace(os.Getenv("ALIYUN_DM_REPLY_TO_ADDRESS")); replyStr != "" {
		parsed, err := strconv.ParseBool(replyStr)
		if err != nil {
			return AliyunConfig{}, false, fmt.Errorf("parse ALIYUN_DM_REPLY_TO_ADDRESS: %w", err)
		}
		replyToAddress = parsed
	}

	// AddressType=0 会生成随机发件地址，这里只接受 1。
	if raw := strings.TrimSpace(os.Getenv("ALIYUN_DM_ADDRESS_TYPE")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return AliyunConfig{}, false, fmt.Errorf("parse ALIYUN_DM_ADDRESS_TYPE: %w", err)
		}
		if parsed != 0 && parsed != 1 {
			return AliyunConfig{}, false, fmt.Errorf("invalid ALIYUN_DM_ADDRESS_TYPE: %d", parsed)
		}
	}

	return AliyunConfig{
		AccessKeyID:     accessKey,
		AccessKeySecret: secret,
		RegionID:        region,
		AccountName:     accountName,
		FromAlias:       strings.TrimSpace(os.Getenv("ALIYUN_DM_FROM_ALIAS")),
		TagName:         strings.TrimSpace(os.Getenv("ALIYUN_DM_TAG_NAME")),
		ReplyToAddress:  replyToAddress,
		Endpoint:        endpoint,
		AddressType:     1,
		Recipient:       recipient,
		PublicBaseURL:   os.Getenv("APP_PUBLIC_BASE_URL"),
	}, true, nil
}

// normaliseBaseURL 去掉首尾空白以及误粘贴的前导等号。
func normaliseBaseURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimLeft(trimmed, "=")
	return strings.TrimSpace(trimmed)
}
