package email

import (
	"context"
	"fmt"
	"strings"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	dm "github.com/alibabacloud-go/dm-20151123/v2/client"
	"github.com/alibabacloud-go/tea/tea"
)

const defaultDirectMailEndpoint = "dm.aliyuncs.com"

type singleSender interface {
	SingleSendMail(request *dm.SingleSendMailRequest) (*dm.SingleSendMailResponse, error)
}

// AliyunSender 使用阿里云 DirectMail 发送删除申请通知。
type AliyunSender struct {
	client singleSender
	cfg    AliyunConfig
}

// NewAliyunSender 校验账号配置并创建 DirectMail 客户端。
func NewAliyunSender(cfg AliyunConfig) (*AliyunSender, error) {
	switch {
	case cfg.AccessKeyID == "" || cfg.AccessKeySecret == "":
		return nil, fmt.Errorf("aliyun access key not configured")
	case cfg.AccountName == "":
		return nil, fmt.Errorf("aliyun account name not configured")
	case strings.TrimSpace(cfg.Recipient) == "":
		return nil, fmt.Errorf("aliyun recipient not configured")
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = defaultDirectMailEndpoint
	}

	apiCfg := &openapi.Config{
		AccessKeyId:     tea.String(cfg.AccessKeyID),
		AccessKeySecret: tea.String(cfg.AccessKeySecret),
		Endpoint:        tea.String(cfg.Endpoint),
	}
	if cfg.RegionID != "" {
		apiCfg.RegionId = tea.String(cfg.RegionID)
	}
	client, err := dm.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("init aliyun directmail client: %w", err)
	}
	return &AliyunSender{client: client, cfg: cfg}, nil
}

// Name 用作指标与日志中的渠道名。
func (s *AliyunSender) Name() string { return "aliyun_dm" }

// NotifyDeletionRequest 通过 SingleSendMail 发送删除申请通知。
// SDK 调用本身不支持 context，ctx 结束时提前返回，后台请求自行完成。
func (s *AliyunSender) NotifyDeletionRequest(ctx context.Context, notice promptdomain.DeletionNotice) error {
	request := s.buildRequest(notice)

	done := make(chan error, 1)
	go func() {
		_, err := s.client.SingleSendMail(request)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("aliyun single send mail: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("aliyun single send mail: %w", err)
		}
		return nil
	}
}

func (s *AliyunSender) buildRequest(notice promptdomain.DeletionNotice) *dm.SingleSendMailRequest {
	subject, textBody, htmlBody := composeDeletionContent(s.cfg.PublicBaseURL, notice)
	request := &dm.SingleSendMailRequest{
		AccountName:    tea.String(s.cfg.AccountName),
		ToAddress:      tea.String(strings.TrimSpace(s.cfg.Recipient)),
		Subject:        tea.String(subject),
		AddressType:    tea.Int32(s.cfg.AddressType),
		ReplyToAddress: tea.Bool(s.cfg.ReplyToAddress),
		TextBody:       tea.String(textBody),
	}
	if htmlBody != "" {
		request.HtmlBody = tea.String(htmlBody)
	}
	if s.cfg.FromAlias != "" {
		request.FromAlias = tea.String(s.cfg.FromAlias)
	}
	if s.cfg.TagName != "" {
		request.TagName = tea.String(s.cfg.TagName)
	}
	return request
}
