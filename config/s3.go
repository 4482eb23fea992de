package config

type S3Config struct {
	BucketName string `yaml:"bucketName"`
	Region     string `yaml:"region"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
}

func (c *S3Config) applyEnv(str func(*string, string)) {
	str(&c.BucketName, "AWS_S3_BUCKET_NAME")
	str(&c.Region, "AWS_REGION")
	str(&c.Endpoint, "AWS_ENDPOINT")
	str(&c.AccessKey, "AWS_ACCESS_KEY")
	str(&c.SecretKey, "AWS_SECRET_KEY")
}
