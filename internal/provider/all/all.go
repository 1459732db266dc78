// Package all 导入所有提供商包以触发 init() 注册
package all

import (
	_ "certautobot/internal/provider/aliyun"
	_ "certautobot/internal/provider/digitalocean"
	_ "certautobot/internal/provider/huawei"
	_ "certautobot/internal/provider/tencent"
)
