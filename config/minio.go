package config

type MinioConfig struct {
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
	Endpoint   string `yaml:"endpoint"`
	UseSSL     bool   `yaml:"useSSL"`
	Region     string `yaml:"region"`
	BucketName string `yaml:"bucketName"`
}

func (c *MinioConfig) applyEnv(str func(*string, string), flag func(*bool, string)) {
	str(&c.AccessKey, "MINIO_ACCESS_KEY")
	str(&c.SecretKey, "MINIO_SECRET_KEY")
	str(&c.Endpoint, "MINIO_ENDPOINT")
	str(&c.Region, "MINIO_REGION")
	str(&c.BucketName, "MINIO_BUCKET_NAME")
	flag(&c.UseSSL, "MINIO_USE_SSL")
}
