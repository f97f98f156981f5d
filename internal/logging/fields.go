package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供缓存桶/请求/来源字段，供 fetch 事件日志复用。
// source 取值 network、cache、offline_page 或 queue。
func RequestFields(bucket, method, url, source string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"bucket":    bucket,
		"method":    method,
		"url":       url,
		"source":    source,
		"cache_hit": cacheHit,
	}
}

// LifecycleFields 描述 worker 生命周期事件（install/activate 等）。
func LifecycleFields(event, bucket, state string) logrus.Fields {
	return logrus.Fields{
		"action": event,
		"bucket": bucket,
		"state":  state,
	}
}
